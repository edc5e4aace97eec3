package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	txndomain "github.com/pulsepaylabs/pulsepay/internal/transaction/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() txndomain.Repository {
	return &repository{}
}

func (r *repository) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]txndomain.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var txns []txndomain.Transaction
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&txns).Error
	return txns, err
}

func (r *repository) ListUnsettledBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]txndomain.Transaction, error) {
	var txns []txndomain.Transaction
	err := db.WithContext(ctx).
		Where("display_status = ? AND wallet_credited = ? AND settlement_mode IS NULL AND transaction_time < ?",
			txndomain.DisplayStatusSuccess, false, cutoff).
		Order("retailer_id, transaction_time").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *repository) ApplySettlement(ctx context.Context, db *gorm.DB, update txndomain.SettlementUpdate) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET wallet_credited = ?,
		     settlement_mode = ?,
		     settlement_rate = ?,
		     settlement_fee = ?,
		     settlement_net = ?,
		     scheme_id = ?
		 WHERE id = ? AND wallet_credited = ?`,
		true,
		update.Mode,
		update.Rate,
		update.Fee,
		update.Net,
		update.SchemeID,
		update.TransactionID,
		false,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return txndomain.ErrTransactionNotFound
	}
	return nil
}
