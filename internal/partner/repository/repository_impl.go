package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() partnerdomain.Repository {
	return &repository{}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*partnerdomain.Partner, error) {
	var partner partnerdomain.Partner
	err := db.WithContext(ctx).Where("id = ?", id).First(&partner).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

func (r *repository) FindByAPIKeyHash(ctx context.Context, db *gorm.DB, hash string) (*partnerdomain.Partner, error) {
	var partner partnerdomain.Partner
	err := db.WithContext(ctx).
		Where("api_key_hash = ? AND status = ?", hash, partnerdomain.StatusActive).
		First(&partner).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

func (r *repository) DistributorFor(ctx context.Context, db *gorm.DB, retailerID snowflake.ID) (*partnerdomain.Partner, error) {
	var distributor partnerdomain.Partner
	err := db.WithContext(ctx).Raw(
		`SELECT p.* FROM partners p
		 JOIN partners r ON r.parent_id = p.id
		 WHERE r.id = ? AND p.role = ?`,
		retailerID,
		partnerdomain.RoleDistributor,
	).Scan(&distributor).Error
	if err != nil {
		return nil, err
	}
	if distributor.ID == 0 {
		return nil, nil
	}
	return &distributor, nil
}

func (r *repository) ListPausedIDs(ctx context.Context, db *gorm.DB) (map[snowflake.ID]bool, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM partners
		 WHERE t1_settlement_paused = ? AND role IN (?, ?)`,
		true,
		partnerdomain.RoleRetailer,
		partnerdomain.RoleDistributor,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}

	paused := make(map[snowflake.ID]bool, len(ids))
	for _, id := range ids {
		paused[id] = true
	}
	return paused, nil
}

func (r *repository) SetT1Paused(ctx context.Context, db *gorm.DB, id snowflake.ID, paused bool) error {
	result := db.WithContext(ctx).Model(&partnerdomain.Partner{}).
		Where("id = ?", id).
		Update("t1_settlement_paused", paused)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return partnerdomain.ErrPartnerNotFound
	}
	return nil
}
