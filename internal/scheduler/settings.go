package scheduler

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const cronSettingsID = 1

// CronSettings is the singleton schedule row. Operators mutate it through
// the API; the scheduler re-reads it every poll cycle so changes take effect
// without a restart.
type CronSettings struct {
	ID               int        `json:"-" gorm:"primaryKey"`
	ScheduleHour     int        `json:"schedule_hour" gorm:"not null"`
	ScheduleMinute   int        `json:"schedule_minute" gorm:"not null"`
	Timezone         string     `json:"timezone" gorm:"type:text;not null"`
	IsEnabled        bool       `json:"is_enabled" gorm:"not null"`
	LastRunAt        *time.Time `json:"last_run_at"`
	LastRunStatus    string     `json:"last_run_status" gorm:"type:text"`
	LastRunMessage   string     `json:"last_run_message" gorm:"type:text"`
	LastRunProcessed int        `json:"last_run_processed" gorm:"not null;default:0"`
	LastRunFailed    int        `json:"last_run_failed" gorm:"not null;default:0"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"not null"`
}

func (CronSettings) TableName() string { return "cron_settings" }

var ErrInvalidSchedule = errors.New("invalid_schedule")

// SettingsStore reads and writes the singleton CronSettings row.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the settings row, creating a disabled default on first read.
func (s *SettingsStore) Get(ctx context.Context) (*CronSettings, error) {
	var settings CronSettings
	err := s.db.WithContext(ctx).Where("id = ?", cronSettingsID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	settings = CronSettings{
		ID:             cronSettingsID,
		ScheduleHour:   2,
		ScheduleMinute: 0,
		Timezone:       "UTC",
		IsEnabled:      false,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

type UpdateScheduleRequest struct {
	ScheduleHour   int
	ScheduleMinute int
	Timezone       string
	IsEnabled      bool
}

func (s *SettingsStore) Update(ctx context.Context, req UpdateScheduleRequest) (*CronSettings, error) {
	if req.ScheduleHour < 0 || req.ScheduleHour > 23 || req.ScheduleMinute < 0 || req.ScheduleMinute > 59 {
		return nil, ErrInvalidSchedule
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, ErrInvalidSchedule
	}

	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	settings.ScheduleHour = req.ScheduleHour
	settings.ScheduleMinute = req.ScheduleMinute
	settings.Timezone = req.Timezone
	settings.IsEnabled = req.IsEnabled
	settings.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// RecordRun persists the outcome of a sweep regardless of how it ended.
func (s *SettingsStore) RecordRun(ctx context.Context, at time.Time, status, message string, processed, failed int) error {
	return s.db.WithContext(ctx).Model(&CronSettings{}).
		Where("id = ?", cronSettingsID).
		Updates(map[string]any{
			"last_run_at":        at,
			"last_run_status":    status,
			"last_run_message":   message,
			"last_run_processed": processed,
			"last_run_failed":    failed,
			"updated_at":         time.Now().UTC(),
		}).Error
}
