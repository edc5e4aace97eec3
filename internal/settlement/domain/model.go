// Package domain contains settlement batch records and the processor contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	"github.com/pulsepaylabs/pulsepay/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusFailed     BatchStatus = "failed"
)

type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusSettled ItemStatus = "settled"
	ItemStatusFailed  ItemStatus = "failed"
	ItemStatusSkipped ItemStatus = "skipped"
)

// SettlementBatch is one run's unit of work for a single retailer. It is
// created in processing state, mutated only by the owning run, and terminal
// once the status leaves processing.
type SettlementBatch struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	RetailerID        snowflake.ID      `json:"retailer_id" gorm:"not null;index"`
	Tier              schemedomain.Tier `json:"tier" gorm:"type:text;not null"`
	TotalTransactions int               `json:"total_transactions" gorm:"not null"`
	Status            BatchStatus       `json:"status" gorm:"type:text;not null;index"`
	TotalGross        decimal.Decimal   `json:"total_gross" gorm:"type:numeric(14,2);not null"`
	TotalMDR          decimal.Decimal   `json:"total_mdr" gorm:"type:numeric(14,4);not null"`
	TotalNet          decimal.Decimal   `json:"total_net" gorm:"type:numeric(14,2);not null"`
	SuccessCount      int               `json:"success_count" gorm:"not null"`
	FailedCount       int               `json:"failed_count" gorm:"not null"`
	SkippedCount      int               `json:"skipped_count" gorm:"not null"`
	WalletCreditID    *snowflake.ID     `json:"wallet_credit_id"`
	ErrorMessage      string            `json:"error_message" gorm:"type:text"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	CompletedAt       *time.Time        `json:"completed_at"`
}

func (SettlementBatch) TableName() string { return "settlement_batches" }

// BatchItem is one transaction's attempt inside a batch. An item moves from
// pending to settled only after the batch's aggregate ledger credit lands;
// failed and skipped are terminal for that batch.
type BatchItem struct {
	ID            snowflake.ID     `json:"id" gorm:"primaryKey"`
	BatchID       snowflake.ID     `json:"batch_id" gorm:"not null;index"`
	TransactionID snowflake.ID     `json:"transaction_id" gorm:"not null;index"`
	GrossAmount   decimal.Decimal  `json:"gross_amount" gorm:"type:numeric(14,2);not null"`
	MDRRate       decimal.Decimal  `json:"mdr_rate" gorm:"type:numeric(6,4);not null"`
	MDRAmount     decimal.Decimal  `json:"mdr_amount" gorm:"type:numeric(14,4);not null"`
	NetAmount     decimal.Decimal  `json:"net_amount" gorm:"type:numeric(14,2);not null"`
	Margin        decimal.Decimal  `json:"margin" gorm:"type:numeric(14,4);not null"`
	Status        ItemStatus       `json:"status" gorm:"type:text;not null;index"`
	ErrorMessage  string           `json:"error_message" gorm:"type:text"`
	SchemeID      *snowflake.ID    `json:"scheme_id"`
	CreatedAt     time.Time        `json:"created_at" gorm:"not null"`
}

func (BatchItem) TableName() string { return "settlement_batch_items" }

var (
	ErrNoEligibleTransactions = errors.New("no_eligible_transactions")
	ErrBatchNotFound          = errors.New("batch_not_found")
	ErrBatchTooLarge          = errors.New("batch_too_large")
	ErrNotRetailerOwned       = errors.New("transaction_not_owned")
	ErrLedgerCreditFailed     = errors.New("ledger_credit_failed")
)

// DuplicateSettlementError rejects a request that references transactions
// already settled or claimed by a live batch. Raised before any batch row is
// created, so a retried request never produces a second credit.
type DuplicateSettlementError struct {
	TransactionIDs []snowflake.ID
}

func (e *DuplicateSettlementError) Error() string { return "duplicate_settlement_attempt" }

// ItemFailure is one per-transaction failure surfaced in the run summary.
type ItemFailure struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	Reason        string       `json:"reason"`
}

// BatchSummary is the structured result of one settlement run, returned even
// on partial success.
type BatchSummary struct {
	BatchID        snowflake.ID    `json:"batch_id"`
	Status         BatchStatus     `json:"status"`
	Settled        int             `json:"settled"`
	Failed         int             `json:"failed"`
	Skipped        int             `json:"skipped"`
	TotalNet       decimal.Decimal `json:"total_net"`
	FailureReasons []ItemFailure   `json:"failure_reasons,omitempty"`
}

type BatchDetail struct {
	Batch SettlementBatch `json:"batch"`
	Items []BatchItem     `json:"items"`
}

type Service interface {
	// SettleInstant runs an on-demand T+0 batch over explicitly selected
	// transactions of one retailer.
	SettleInstant(ctx context.Context, retailerID snowflake.ID, txnIDs []snowflake.ID) (*BatchSummary, error)
	// SettleRetailer runs one batch over pre-selected transactions; the
	// scheduler uses it with TierT1 per retailer group.
	SettleRetailer(ctx context.Context, retailerID snowflake.ID, txns []txndomain.Transaction, tier schemedomain.Tier) (*BatchSummary, error)
	GetBatch(ctx context.Context, id snowflake.ID) (*BatchDetail, error)
	ListBatches(ctx context.Context, retailerID snowflake.ID, page pagination.Pagination) ([]SettlementBatch, *pagination.PageInfo, error)
}
