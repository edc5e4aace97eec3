// Package scheduler drives the recurring T+1 settlement sweep. A single
// background loop polls the schedule settings, arms a timer for the next
// configured fire, and guarantees at most one sweep runs at a time.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pulsepaylabs/pulsepay/internal/clock"
	"github.com/pulsepaylabs/pulsepay/internal/config"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrSweepAlreadyRunning = errors.New("sweep_already_running")

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   config.SchedulerConfig
	genID *snowflake.Node

	settings      *SettingsStore
	partnerRepo   partnerdomain.Repository
	txnRepo       txndomain.Repository
	settlementSvc settlementdomain.Service
	lock          *sweepLock

	running atomic.Bool
	armed   *armedSchedule
}

// armedSchedule is the timer currently waiting for the configured fire time.
type armedSchedule struct {
	hour     int
	minute   int
	timezone string
	timer    *time.Timer
}

func (a *armedSchedule) matches(settings *CronSettings) bool {
	return a != nil &&
		a.hour == settings.ScheduleHour &&
		a.minute == settings.ScheduleMinute &&
		a.timezone == settings.Timezone
}

type Param struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Cfg           config.Config
	GenID         *snowflake.Node
	PartnerRepo   partnerdomain.Repository
	TxnRepo       txndomain.Repository
	SettlementSvc settlementdomain.Service
	Redis         *redis.Client `optional:"true"`
}

func New(p Param) *Scheduler {
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler"),
		clock:         p.Clock,
		cfg:           p.Cfg.Scheduler,
		genID:         p.GenID,
		settings:      NewSettingsStore(p.DB),
		partnerRepo:   p.PartnerRepo,
		txnRepo:       p.TxnRepo,
		settlementSvc: p.SettlementSvc,
		lock:          newSweepLock(p.Redis, p.Cfg.Scheduler.LockTTL),
	}
}

// Settings exposes the schedule store to the HTTP layer.
func (s *Scheduler) Settings() *SettingsStore { return s.settings }

// RunForever polls the schedule settings until the context is canceled.
// Disabling the schedule cancels the armed timer; changing the fire time
// re-arms it within one poll interval.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.disarm()
			return
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.timerC():
			s.disarm()
			if _, err := s.Sweep(ctx, "schedule"); err != nil && !errors.Is(err, ErrSweepAlreadyRunning) {
				s.log.Error("scheduled sweep failed", zap.Error(err))
			}
			// Arm the next day's fire immediately rather than waiting for
			// the next poll.
			s.reconcile(ctx)
		}
	}
}

func (s *Scheduler) timerC() <-chan time.Time {
	if s.armed == nil {
		return nil
	}
	return s.armed.timer.C
}

func (s *Scheduler) reconcile(ctx context.Context) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Error("failed to read schedule settings", zap.Error(err))
		return
	}

	if !settings.IsEnabled {
		if s.armed != nil {
			s.log.Info("schedule disabled, disarming timer")
			s.disarm()
		}
		return
	}

	if s.armed.matches(settings) {
		return
	}

	fireAt, err := nextFireTime(s.clock.Now(), settings.ScheduleHour, settings.ScheduleMinute, settings.Timezone)
	if err != nil {
		s.log.Error("invalid schedule timezone", zap.String("timezone", settings.Timezone), zap.Error(err))
		return
	}

	s.disarm()
	s.armed = &armedSchedule{
		hour:     settings.ScheduleHour,
		minute:   settings.ScheduleMinute,
		timezone: settings.Timezone,
		timer:    time.NewTimer(fireAt.Sub(s.clock.Now())),
	}
	s.log.Info("schedule armed",
		zap.Int("hour", settings.ScheduleHour),
		zap.Int("minute", settings.ScheduleMinute),
		zap.String("timezone", settings.Timezone),
		zap.Time("fire_at", fireAt),
	)
}

func (s *Scheduler) disarm() {
	if s.armed == nil {
		return
	}
	if !s.armed.timer.Stop() {
		select {
		case <-s.armed.timer.C:
		default:
		}
	}
	s.armed = nil
}

// nextFireTime returns the next occurrence of hh:mm in the given timezone
// strictly after now.
func nextFireTime(now time.Time, hour, minute int, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !fire.After(local) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire, nil
}
