// Package domain contains MDR scheme records and the resolver contract.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeCustom Scope = "custom"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Mode string

const (
	ModeCard Mode = "CARD"
	ModeUPI  Mode = "UPI"
)

// Tier selects which rate pair of a scheme applies to a settlement run.
type Tier string

const (
	TierT0 Tier = "T0"
	TierT1 Tier = "T1"
)

// Scheme is one MDR rate rule. Nil attribute columns are wildcards; an
// explicit column only matches a transaction carrying that exact value.
// Schemes are never deleted, only deactivated, so settled transactions keep
// a resolvable scheme reference.
type Scheme struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	Scope              Scope           `json:"scope" gorm:"type:text;not null;index"`
	OwnerRetailerID    *snowflake.ID   `json:"owner_retailer_id" gorm:"index"`
	Mode               Mode            `json:"mode" gorm:"type:text;not null;index"`
	CardType           *string         `json:"card_type" gorm:"type:text"`
	BrandType          *string         `json:"brand_type" gorm:"type:text"`
	CardClassification *string         `json:"card_classification" gorm:"type:text"`
	RetailerMDRT1      decimal.Decimal `json:"retailer_mdr_t1" gorm:"type:numeric(6,4);not null"`
	DistributorMDRT1   decimal.Decimal `json:"distributor_mdr_t1" gorm:"type:numeric(6,4);not null"`
	RetailerMDRT0      decimal.Decimal `json:"retailer_mdr_t0" gorm:"type:numeric(6,4);not null"`
	DistributorMDRT0   decimal.Decimal `json:"distributor_mdr_t0" gorm:"type:numeric(6,4);not null"`
	Status             Status          `json:"status" gorm:"type:text;not null;default:'active';index"`
	EffectiveDate      time.Time       `json:"effective_date" gorm:"not null"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`
}

func (Scheme) TableName() string { return "mdr_schemes" }

// Rates returns the (retailer, distributor) MDR pair for a tier. T0 and T1
// are configured independently; there is no derived relationship between them.
func (s *Scheme) Rates(tier Tier) (decimal.Decimal, decimal.Decimal) {
	if tier == TierT0 {
		return s.RetailerMDRT0, s.DistributorMDRT0
	}
	return s.RetailerMDRT1, s.DistributorMDRT1
}

// Specificity counts populated attribute columns, used to rank competing
// matches at the same relaxation level.
func (s *Scheme) Specificity() int {
	n := 0
	if s.CardType != nil {
		n++
	}
	if s.BrandType != nil {
		n++
	}
	if s.CardClassification != nil {
		n++
	}
	return n
}

// Attributes are the transaction-side matching inputs. Empty strings mean
// the transaction does not carry that attribute.
type Attributes struct {
	Mode               Mode
	CardType           string
	BrandType          string
	CardClassification string
}

// brandAliases maps scheme-acquirer brand spellings onto canonical names.
var brandAliases = map[string]string{
	"MASTER_CARD": "MASTERCARD",
	"MASTER":      "MASTERCARD",
	"AMEX":        "AMERICAN_EXPRESS",
	"DINERS":      "DINERS_CLUB",
}

// CanonicalBrand upper-cases a brand name and folds known aliases.
func CanonicalBrand(brand string) string {
	b := strings.ToUpper(strings.TrimSpace(brand))
	if canonical, ok := brandAliases[b]; ok {
		return canonical
	}
	return b
}

// Normalize case-folds the lookup attributes before matching.
func (a Attributes) Normalize() Attributes {
	return Attributes{
		Mode:               Mode(strings.ToUpper(strings.TrimSpace(string(a.Mode)))),
		CardType:           strings.ToUpper(strings.TrimSpace(a.CardType)),
		BrandType:          CanonicalBrand(a.BrandType),
		CardClassification: strings.ToUpper(strings.TrimSpace(a.CardClassification)),
	}
}

var (
	ErrSchemeNotFound  = errors.New("scheme_not_found")
	ErrInvalidScheme   = errors.New("invalid_scheme")
	ErrNegativeMargin  = errors.New("negative_margin_config")
	ErrInvalidMode     = errors.New("invalid_mode")
	ErrOwnerRequired   = errors.New("owner_retailer_required")
)

type CreateSchemeRequest struct {
	Scope              Scope
	OwnerRetailerID    *snowflake.ID
	Mode               Mode
	CardType           *string
	BrandType          *string
	CardClassification *string
	RetailerMDRT1      decimal.Decimal
	DistributorMDRT1   decimal.Decimal
	RetailerMDRT0      decimal.Decimal
	DistributorMDRT0   decimal.Decimal
	EffectiveDate      time.Time
}

type ListFilter struct {
	Scope           Scope
	OwnerRetailerID *snowflake.ID
	Mode            Mode
	Status          Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, scheme *Scheme) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Scheme, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Scheme, error)
	// ListActive loads the active candidate set for one scope and mode,
	// restricted to schemes effective at asOf; ownerRetailerID is nil for
	// the global scope.
	ListActive(ctx context.Context, db *gorm.DB, scope Scope, ownerRetailerID *snowflake.ID, mode Mode, asOf time.Time) ([]Scheme, error)
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) error
}

type Service interface {
	Create(ctx context.Context, req CreateSchemeRequest) (*Scheme, error)
	Get(ctx context.Context, id snowflake.ID) (*Scheme, error)
	List(ctx context.Context, filter ListFilter) ([]Scheme, error)
	Deactivate(ctx context.Context, id snowflake.ID) error
	// Resolve returns the single applicable scheme for a transaction,
	// walking custom-before-global with progressive attribute relaxation.
	Resolve(ctx context.Context, retailerID snowflake.ID, attrs Attributes) (*Scheme, error)
}
