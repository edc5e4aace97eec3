// Package domain contains the wallet ledger entry and the credit contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	"github.com/shopspring/decimal"
)

type WalletType string

const (
	WalletTypePrimary WalletType = "primary"
	// WalletTypePendingEarnings parks company earnings when no company
	// account is configured, so they are deferred instead of lost.
	WalletTypePendingEarnings WalletType = "pending_company_earnings"
)

// WalletEntry is the audit record written by every credit. The unique index
// on (reference_id, wallet_type) is what makes Credit idempotent.
type WalletEntry struct {
	ID            snowflake.ID       `json:"id" gorm:"primaryKey"`
	PartnerID     snowflake.ID       `json:"partner_id" gorm:"not null;index"`
	Role          partnerdomain.Role `json:"role" gorm:"type:text;not null"`
	WalletType    WalletType         `json:"wallet_type" gorm:"type:text;not null;uniqueIndex:idx_wallet_entries_ref"`
	Amount        decimal.Decimal    `json:"amount" gorm:"type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal    `json:"balance_after" gorm:"type:numeric(14,2);not null"`
	ReferenceID   string             `json:"reference_id" gorm:"type:text;not null;uniqueIndex:idx_wallet_entries_ref"`
	TransactionID *snowflake.ID      `json:"transaction_id"`
	Remarks       string             `json:"remarks" gorm:"type:text"`
	CreatedAt     time.Time          `json:"created_at" gorm:"not null"`
}

func (WalletEntry) TableName() string { return "wallet_entries" }

var (
	ErrDuplicateReference = errors.New("duplicate_ledger_reference")
	ErrInvalidCredit      = errors.New("invalid_credit")
	ErrPartnerNotFound    = errors.New("partner_not_found")
)

type CreditRequest struct {
	PartnerID     snowflake.ID
	Role          partnerdomain.Role
	WalletType    WalletType
	Amount        decimal.Decimal
	ReferenceID   string
	TransactionID *snowflake.ID
	Remarks       string
}

type Service interface {
	// Credit atomically increases the partner balance and records one audit
	// entry. A reused reference id returns ErrDuplicateReference and leaves
	// the balance untouched.
	Credit(ctx context.Context, req CreditRequest) (snowflake.ID, error)
	// CreditCompanyEarning credits the configured company account, or parks
	// the amount on the pending-earnings wallet when none is configured.
	CreditCompanyEarning(ctx context.Context, amount decimal.Decimal, referenceID, remarks string) (snowflake.ID, error)
}
