package service

import (
	"github.com/pulsepaylabs/pulsepay/internal/fees"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	"github.com/shopspring/decimal"
)

// batchRun accumulates the in-memory state of one settlement pass: the items
// to persist, the pending write-backs, and the running totals.
type batchRun struct {
	batch   *settlementdomain.SettlementBatch
	items   []settlementdomain.BatchItem
	pending []pendingItem

	failed  int
	skipped int

	totalGross   decimal.Decimal
	totalMDR     decimal.Decimal
	totalNet     decimal.Decimal
	totalMargin  decimal.Decimal
	totalEarning decimal.Decimal

	failures []settlementdomain.ItemFailure
}

type pendingItem struct {
	update txndomain.SettlementUpdate
}

func newBatchRun(batch *settlementdomain.SettlementBatch) *batchRun {
	return &batchRun{
		batch:        batch,
		totalGross:   decimal.Zero,
		totalMDR:     decimal.Zero,
		totalNet:     decimal.Zero,
		totalMargin:  decimal.Zero,
		totalEarning: decimal.Zero,
	}
}

func (r *batchRun) accept(item settlementdomain.BatchItem, breakdown fees.Breakdown, update txndomain.SettlementUpdate) {
	r.items = append(r.items, item)
	r.pending = append(r.pending, pendingItem{update: update})

	r.totalGross = r.totalGross.Add(item.GrossAmount)
	r.totalMDR = r.totalMDR.Add(item.MDRAmount)
	r.totalNet = r.totalNet.Add(item.NetAmount)
	r.totalMargin = r.totalMargin.Add(breakdown.DistributorMargin)
	r.totalEarning = r.totalEarning.Add(breakdown.CompanyEarning)
}

func (r *batchRun) fail(item settlementdomain.BatchItem, reason string) {
	item.Status = settlementdomain.ItemStatusFailed
	item.ErrorMessage = reason
	r.items = append(r.items, item)
	r.failed++
	r.failures = append(r.failures, settlementdomain.ItemFailure{
		TransactionID: item.TransactionID,
		Reason:        reason,
	})
}

func (r *batchRun) skip(item settlementdomain.BatchItem, reason string) {
	item.Status = settlementdomain.ItemStatusSkipped
	item.ErrorMessage = reason
	r.items = append(r.items, item)
	r.skipped++
	r.failures = append(r.failures, settlementdomain.ItemFailure{
		TransactionID: item.TransactionID,
		Reason:        reason,
	})
}

func (r *batchRun) summary(batch *settlementdomain.SettlementBatch, settled int) *settlementdomain.BatchSummary {
	return &settlementdomain.BatchSummary{
		BatchID:        batch.ID,
		Status:         batch.Status,
		Settled:        settled,
		Failed:         r.failed,
		Skipped:        r.skipped,
		TotalNet:       r.totalNet,
		FailureReasons: r.failures,
	}
}
