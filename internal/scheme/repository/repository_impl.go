package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() schemedomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, scheme *schemedomain.Scheme) error {
	return db.WithContext(ctx).Create(scheme).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*schemedomain.Scheme, error) {
	var scheme schemedomain.Scheme
	err := db.WithContext(ctx).Where("id = ?", id).First(&scheme).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &scheme, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, filter schemedomain.ListFilter) ([]schemedomain.Scheme, error) {
	query := db.WithContext(ctx).Model(&schemedomain.Scheme{})
	if filter.Scope != "" {
		query = query.Where("scope = ?", filter.Scope)
	}
	if filter.OwnerRetailerID != nil {
		query = query.Where("owner_retailer_id = ?", *filter.OwnerRetailerID)
	}
	if filter.Mode != "" {
		query = query.Where("mode = ?", filter.Mode)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var schemes []schemedomain.Scheme
	err := query.Order("effective_date DESC").Find(&schemes).Error
	return schemes, err
}

func (r *repository) ListActive(ctx context.Context, db *gorm.DB, scope schemedomain.Scope, ownerRetailerID *snowflake.ID, mode schemedomain.Mode, asOf time.Time) ([]schemedomain.Scheme, error) {
	query := db.WithContext(ctx).
		Where("scope = ? AND mode = ? AND status = ?", scope, mode, schemedomain.StatusActive).
		Where("effective_date <= ?", asOf)
	if scope == schemedomain.ScopeCustom {
		if ownerRetailerID == nil {
			return nil, nil
		}
		query = query.Where("owner_retailer_id = ?", *ownerRetailerID)
	}

	var schemes []schemedomain.Scheme
	err := query.Order("effective_date DESC").Find(&schemes).Error
	return schemes, err
}

func (r *repository) SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status schemedomain.Status) error {
	result := db.WithContext(ctx).Model(&schemedomain.Scheme{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return schemedomain.ErrSchemeNotFound
	}
	return nil
}
