// Package domain contains the payment transaction record consumed by
// settlement. Acquiring-side fields are written by the POS/BBPS pipelines;
// settlement only reads them and owns the settlement_* columns.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DisplayStatus string

const (
	DisplayStatusSuccess DisplayStatus = "SUCCESS"
	DisplayStatusFailed  DisplayStatus = "FAILED"
	DisplayStatusPending DisplayStatus = "PENDING"
)

type SettlementMode string

const (
	SettlementModeInstant SettlementMode = "INSTACASH"
	SettlementModeAutoT1  SettlementMode = "AUTO_T1"
)

// Transaction is one captured payment. WalletCredited and SettlementMode
// form the settlement mutex: a transaction is eligible only while both are
// unset, and they are always written together.
type Transaction struct {
	ID                 snowflake.ID     `json:"id" gorm:"primaryKey"`
	RetailerID         snowflake.ID     `json:"retailer_id" gorm:"not null;index"`
	Amount             decimal.Decimal  `json:"amount" gorm:"type:numeric(14,2);not null"`
	Mode               string           `json:"mode" gorm:"type:text;not null"`
	CardType           string           `json:"card_type" gorm:"type:text"`
	BrandType          string           `json:"brand_type" gorm:"type:text"`
	CardClassification string           `json:"card_classification" gorm:"type:text"`
	DisplayStatus      DisplayStatus    `json:"display_status" gorm:"type:text;not null;index"`
	WalletCredited     bool             `json:"wallet_credited" gorm:"not null;default:false;index"`
	SettlementMode     *SettlementMode  `json:"settlement_mode" gorm:"type:text"`
	SettlementRate     *decimal.Decimal `json:"settlement_rate" gorm:"type:numeric(6,4)"`
	SettlementFee      *decimal.Decimal `json:"settlement_fee" gorm:"type:numeric(14,4)"`
	SettlementNet      *decimal.Decimal `json:"settlement_net" gorm:"type:numeric(14,2)"`
	SchemeID           *snowflake.ID    `json:"scheme_id"`
	TransactionTime    time.Time        `json:"transaction_time" gorm:"not null;index"`
}

func (Transaction) TableName() string { return "transactions" }

// Eligible reports whether the settlement mutex is still open.
func (t *Transaction) Eligible() bool {
	return t.DisplayStatus == DisplayStatusSuccess && !t.WalletCredited && t.SettlementMode == nil
}

var ErrTransactionNotFound = errors.New("transaction_not_found")

// SettlementUpdate carries the write-back that closes the settlement mutex.
type SettlementUpdate struct {
	TransactionID snowflake.ID
	Mode          SettlementMode
	Rate          decimal.Decimal
	Fee           decimal.Decimal
	Net           decimal.Decimal
	SchemeID      snowflake.ID
}

type Repository interface {
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Transaction, error)
	// ListUnsettledBefore pages successful, never-settled transactions older
	// than the cutoff, ordered by retailer so sweep grouping is contiguous.
	ListUnsettledBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Transaction, error)
	// ApplySettlement closes the settlement mutex for one transaction. The
	// update is guarded on wallet_credited = false so a concurrent writer
	// can never settle the same row twice.
	ApplySettlement(ctx context.Context, db *gorm.DB, update SettlementUpdate) error
}
