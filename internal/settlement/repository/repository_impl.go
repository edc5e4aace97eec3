package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	settlementdomain "github.com/pulsepaylabs/pulsepay/internal/settlement/domain"
	"github.com/pulsepaylabs/pulsepay/pkg/db/pagination"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() settlementdomain.Repository {
	return &repository{}
}

func (r *repository) InsertBatch(ctx context.Context, db *gorm.DB, batch *settlementdomain.SettlementBatch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repository) UpdateBatch(ctx context.Context, db *gorm.DB, batch *settlementdomain.SettlementBatch) error {
	return db.WithContext(ctx).Save(batch).Error
}

func (r *repository) FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*settlementdomain.SettlementBatch, error) {
	var batch settlementdomain.SettlementBatch
	err := db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListBatches(ctx context.Context, db *gorm.DB, retailerID snowflake.ID, page pagination.Pagination) ([]settlementdomain.SettlementBatch, int64, error) {
	query := db.WithContext(ctx).Model(&settlementdomain.SettlementBatch{})
	if retailerID != 0 {
		query = query.Where("retailer_id = ?", retailerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []settlementdomain.SettlementBatch
	err := query.Order("created_at DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&batches).Error
	return batches, total, err
}

func (r *repository) InsertItem(ctx context.Context, db *gorm.DB, item *settlementdomain.BatchItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repository) ListItemsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]settlementdomain.BatchItem, error) {
	var items []settlementdomain.BatchItem
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at").
		Find(&items).Error
	return items, err
}

func (r *repository) MarkPendingItemsSettled(ctx context.Context, db *gorm.DB, batchID snowflake.ID) error {
	return db.WithContext(ctx).Model(&settlementdomain.BatchItem{}).
		Where("batch_id = ? AND status = ?", batchID, settlementdomain.ItemStatusPending).
		Update("status", settlementdomain.ItemStatusSettled).Error
}

// FindClaimedTransactionIDs returns the subset of ids already claimed by the
// settlement ledger: either settled in any batch, or pending inside a batch
// that is still processing. Pending items of a failed batch do not block a
// retry.
func (r *repository) FindClaimedTransactionIDs(ctx context.Context, db *gorm.DB, txnIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(txnIDs) == 0 {
		return nil, nil
	}

	var claimed []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT i.transaction_id
		 FROM settlement_batch_items i
		 JOIN settlement_batches b ON b.id = i.batch_id
		 WHERE i.transaction_id IN ?
		   AND (i.status = ? OR (i.status = ? AND b.status = ?))`,
		txnIDs,
		settlementdomain.ItemStatusSettled,
		settlementdomain.ItemStatusPending,
		settlementdomain.BatchStatusProcessing,
	).Scan(&claimed).Error
	return claimed, err
}

func (r *repository) FinalizeBatch(ctx context.Context, db *gorm.DB, batch *settlementdomain.SettlementBatch, status settlementdomain.BatchStatus) error {
	now := time.Now().UTC()
	batch.Status = status
	batch.CompletedAt = &now
	return r.UpdateBatch(ctx, db, batch)
}
