package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	"go.uber.org/zap"
)

// RunReport summarizes one sweep for the manual-run API response.
type RunReport struct {
	Trigger       string    `json:"trigger"`
	StartedAt     time.Time `json:"started_at"`
	Status        string    `json:"status"`
	Batches       int       `json:"batches"`
	Processed     int       `json:"processed"`
	Failed        int       `json:"failed"`
	SkippedPaused int       `json:"skipped_paused"`
}

// RunNow triggers a sweep outside the schedule. It shares the sweep body and
// the single-run guard with the timer path.
func (s *Scheduler) RunNow(ctx context.Context) (*RunReport, error) {
	return s.Sweep(ctx, "manual")
}

// Sweep settles all T+1-eligible transactions older than the start of the
// current calendar day, one batch per retailer. At most one sweep runs at a
// time: a second trigger returns ErrSweepAlreadyRunning without side effects.
func (s *Scheduler) Sweep(ctx context.Context, trigger string) (*RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepAlreadyRunning
	}
	defer s.running.Store(false)

	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx, s.genID.Generate().String())
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrSweepAlreadyRunning
		}
		defer func() {
			if err := s.lock.Release(context.Background()); err != nil {
				s.log.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	report := s.sweep(ctx, trigger)
	sweepRuns.WithLabelValues(trigger, report.Status).Inc()

	// The run outcome is recorded even when the sweep itself failed, so
	// operators can see the last attempt without reading logs.
	if err := s.settings.RecordRun(ctx, report.StartedAt, report.Status, report.message, report.Processed, report.Failed); err != nil {
		s.log.Error("failed to record sweep outcome", zap.Error(err))
	}

	return &report.RunReport, nil
}

type sweepResult struct {
	RunReport
	message string
}

func (s *Scheduler) sweep(ctx context.Context, trigger string) *sweepResult {
	startedAt := s.clock.Now()
	result := &sweepResult{RunReport: RunReport{Trigger: trigger, StartedAt: startedAt}}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		result.Status = "failed"
		result.message = "read settings: " + err.Error()
		return result
	}

	// Pause flags are read fresh at the start of every run, never cached.
	paused, err := s.partnerRepo.ListPausedIDs(ctx, s.db)
	if err != nil {
		result.Status = "failed"
		result.message = "read pause flags: " + err.Error()
		return result
	}

	cutoff := startOfDay(startedAt, settings.Timezone)
	txns, err := s.txnRepo.ListUnsettledBefore(ctx, s.db, cutoff, s.cfg.SweepPageSize)
	if err != nil {
		result.Status = "failed"
		result.message = "select transactions: " + err.Error()
		return result
	}
	if len(txns) == 0 {
		result.Status = "success"
		result.message = "no eligible transactions"
		return result
	}

	failedBatches := 0
	for _, group := range groupByRetailer(txns) {
		if s.groupPaused(ctx, group.retailerID, paused) {
			s.log.Info("skipping paused retailer",
				zap.String("retailer_id", group.retailerID.String()),
				zap.Int("transactions", len(group.txns)),
			)
			sweepPausedSkips.Inc()
			result.SkippedPaused++
			continue
		}

		summary, err := s.settlementSvc.SettleRetailer(ctx, group.retailerID, group.txns, schemedomain.TierT1)
		if err != nil {
			var dup *settlementdomain.DuplicateSettlementError
			if errors.As(err, &dup) {
				// Another run claimed this group first; it is not lost,
				// just not ours to settle.
				s.log.Warn("retailer group already claimed",
					zap.String("retailer_id", group.retailerID.String()))
				continue
			}
			s.log.Error("retailer batch failed",
				zap.String("retailer_id", group.retailerID.String()),
				zap.Error(err),
			)
			failedBatches++
			sweepBatches.WithLabelValues(string(settlementdomain.BatchStatusFailed)).Inc()
			continue
		}

		result.Batches++
		result.Processed += summary.Settled
		result.Failed += summary.Failed
		sweepBatches.WithLabelValues(string(summary.Status)).Inc()
		sweepTransactionsSettled.Add(float64(summary.Settled))
		if summary.Status == settlementdomain.BatchStatusFailed {
			failedBatches++
		}
	}

	switch {
	case failedBatches == 0:
		result.Status = "success"
	case result.Processed > 0:
		result.Status = "partial"
	default:
		result.Status = "failed"
	}
	return result
}

// groupPaused checks the retailer's own flag and its distributor's.
func (s *Scheduler) groupPaused(ctx context.Context, retailerID snowflake.ID, paused map[snowflake.ID]bool) bool {
	if paused[retailerID] {
		return true
	}
	if len(paused) == 0 {
		return false
	}
	distributor, err := s.partnerRepo.DistributorFor(ctx, s.db, retailerID)
	if err != nil {
		s.log.Warn("distributor lookup failed during sweep",
			zap.String("retailer_id", retailerID.String()), zap.Error(err))
		return false
	}
	return distributor != nil && paused[distributor.ID]
}

type retailerGroup struct {
	retailerID snowflake.ID
	txns       []txndomain.Transaction
}

// groupByRetailer preserves first-seen retailer order; the selection query
// orders by retailer so groups are contiguous either way.
func groupByRetailer(txns []txndomain.Transaction) []retailerGroup {
	index := make(map[snowflake.ID]int)
	var groups []retailerGroup
	for _, txn := range txns {
		i, ok := index[txn.RetailerID]
		if !ok {
			i = len(groups)
			index[txn.RetailerID] = i
			groups = append(groups, retailerGroup{retailerID: txn.RetailerID})
		}
		groups[i].txns = append(groups[i].txns, txn)
	}
	return groups
}

func startOfDay(at time.Time, timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
