// Package domain contains partner hierarchy records.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin             Role = "admin"
	RoleMasterDistributor Role = "master_distributor"
	RoleDistributor       Role = "distributor"
	RoleRetailer          Role = "retailer"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Partner is one node of the reseller chain. ParentID points one tier up
// (retailer -> distributor -> master distributor -> admin).
type Partner struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	Code               string          `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name               string          `json:"name" gorm:"type:text;not null"`
	Role               Role            `json:"role" gorm:"type:text;not null;index"`
	ParentID           *snowflake.ID   `json:"parent_id" gorm:"index"`
	APIKeyHash         string          `json:"-" gorm:"type:text;index"`
	WalletBalance      decimal.Decimal `json:"wallet_balance" gorm:"type:numeric(14,2);not null;default:0"`
	T1SettlementPaused bool            `json:"t1_settlement_paused" gorm:"not null;default:false"`
	Status             Status          `json:"status" gorm:"type:text;not null;default:'active'"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`
}

func (Partner) TableName() string { return "partners" }

var (
	ErrPartnerNotFound = errors.New("partner_not_found")
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
	FindByAPIKeyHash(ctx context.Context, db *gorm.DB, hash string) (*Partner, error)
	// DistributorFor walks one tier up from a retailer.
	DistributorFor(ctx context.Context, db *gorm.DB, retailerID snowflake.ID) (*Partner, error)
	// ListPausedIDs returns ids of retailers and distributors whose T+1
	// settlement is paused. Read fresh at the start of every sweep.
	ListPausedIDs(ctx context.Context, db *gorm.DB) (map[snowflake.ID]bool, error)
	SetT1Paused(ctx context.Context, db *gorm.DB, id snowflake.ID, paused bool) error
}
