package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pulsepaylabs/pulsepay/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, batch *SettlementBatch) error
	UpdateBatch(ctx context.Context, db *gorm.DB, batch *SettlementBatch) error
	FindBatchByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SettlementBatch, error)
	ListBatches(ctx context.Context, db *gorm.DB, retailerID snowflake.ID, page pagination.Pagination) ([]SettlementBatch, int64, error)
	InsertItem(ctx context.Context, db *gorm.DB, item *BatchItem) error
	ListItemsByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]BatchItem, error)
	MarkPendingItemsSettled(ctx context.Context, db *gorm.DB, batchID snowflake.ID) error
	FindClaimedTransactionIDs(ctx context.Context, db *gorm.DB, txnIDs []snowflake.ID) ([]snowflake.ID, error)
	FinalizeBatch(ctx context.Context, db *gorm.DB, batch *SettlementBatch, status BatchStatus) error
}
