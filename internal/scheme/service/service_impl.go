package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	"github.com/pulsepaylabs/pulsepay/internal/scheme/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  schemedomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

func NewService(p ServiceParam) schemedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("scheme.service"),
		genID: p.GenID,
		repo:  repository.NewRepository(),
	}
}

func (s *Service) Create(ctx context.Context, req schemedomain.CreateSchemeRequest) (*schemedomain.Scheme, error) {
	if req.Mode != schemedomain.ModeCard && req.Mode != schemedomain.ModeUPI {
		return nil, schemedomain.ErrInvalidMode
	}
	if req.Scope == schemedomain.ScopeCustom && req.OwnerRetailerID == nil {
		return nil, schemedomain.ErrOwnerRequired
	}
	if req.Scope != schemedomain.ScopeCustom && req.Scope != schemedomain.ScopeGlobal {
		return nil, schemedomain.ErrInvalidScheme
	}

	// Margin must be non-negative on every populated tier. A scheme that
	// would produce a negative distributor margin is rejected at write time
	// rather than discovered during a settlement run.
	if req.RetailerMDRT1.LessThan(req.DistributorMDRT1) || req.RetailerMDRT0.LessThan(req.DistributorMDRT0) {
		return nil, schemedomain.ErrNegativeMargin
	}
	if req.RetailerMDRT1.IsNegative() || req.DistributorMDRT1.IsNegative() ||
		req.RetailerMDRT0.IsNegative() || req.DistributorMDRT0.IsNegative() {
		return nil, schemedomain.ErrInvalidScheme
	}

	effectiveDate := req.EffectiveDate
	if effectiveDate.IsZero() {
		effectiveDate = time.Now().UTC()
	}

	now := time.Now().UTC()
	scheme := &schemedomain.Scheme{
		ID:                 s.genID.Generate(),
		Scope:              req.Scope,
		OwnerRetailerID:    req.OwnerRetailerID,
		Mode:               req.Mode,
		CardType:           normalizeAttr(req.CardType),
		BrandType:          normalizeBrand(req.BrandType),
		CardClassification: normalizeAttr(req.CardClassification),
		RetailerMDRT1:      req.RetailerMDRT1,
		DistributorMDRT1:   req.DistributorMDRT1,
		RetailerMDRT0:      req.RetailerMDRT0,
		DistributorMDRT0:   req.DistributorMDRT0,
		Status:             schemedomain.StatusActive,
		EffectiveDate:      effectiveDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, scheme); err != nil {
		return nil, err
	}
	return scheme, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*schemedomain.Scheme, error) {
	scheme, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if scheme == nil {
		return nil, schemedomain.ErrSchemeNotFound
	}
	return scheme, nil
}

func (s *Service) List(ctx context.Context, filter schemedomain.ListFilter) ([]schemedomain.Scheme, error) {
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) error {
	return s.repo.SetStatus(ctx, s.db, id, schemedomain.StatusInactive)
}

// Resolve walks the precedence ladder: at each relaxation level a custom
// scheme owned by the retailer beats a global one, and relaxation drops
// card_classification, then brand_type, then card_type. A dropped or absent
// transaction attribute only matches a wildcard (nil) scheme column; a
// populated column requires an equal explicit value.
func (s *Service) Resolve(ctx context.Context, retailerID snowflake.ID, attrs schemedomain.Attributes) (*schemedomain.Scheme, error) {
	attrs = attrs.Normalize()
	if attrs.Mode != schemedomain.ModeCard && attrs.Mode != schemedomain.ModeUPI {
		return nil, schemedomain.ErrInvalidMode
	}

	now := time.Now().UTC()
	custom, err := s.repo.ListActive(ctx, s.db, schemedomain.ScopeCustom, &retailerID, attrs.Mode, now)
	if err != nil {
		return nil, err
	}
	global, err := s.repo.ListActive(ctx, s.db, schemedomain.ScopeGlobal, nil, attrs.Mode, now)
	if err != nil {
		return nil, err
	}

	for _, level := range relaxationLevels(attrs) {
		if match := bestMatch(custom, level); match != nil {
			return match, nil
		}
		if match := bestMatch(global, level); match != nil {
			return match, nil
		}
	}

	return nil, schemedomain.ErrSchemeNotFound
}

// relaxationLevels yields the attribute tuples to try, most specific first.
func relaxationLevels(attrs schemedomain.Attributes) []schemedomain.Attributes {
	levels := []schemedomain.Attributes{attrs}

	if attrs.CardClassification != "" {
		attrs.CardClassification = ""
		levels = append(levels, attrs)
	}
	if attrs.BrandType != "" {
		attrs.BrandType = ""
		levels = append(levels, attrs)
	}
	if attrs.CardType != "" {
		attrs.CardType = ""
		levels = append(levels, attrs)
	}

	return levels
}

func bestMatch(candidates []schemedomain.Scheme, attrs schemedomain.Attributes) *schemedomain.Scheme {
	var matches []schemedomain.Scheme
	for _, candidate := range candidates {
		if matchesLevel(&candidate, attrs) {
			matches = append(matches, candidate)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Specificity() != matches[j].Specificity() {
			return matches[i].Specificity() > matches[j].Specificity()
		}
		return matches[i].EffectiveDate.After(matches[j].EffectiveDate)
	})
	return &matches[0]
}

func matchesLevel(scheme *schemedomain.Scheme, attrs schemedomain.Attributes) bool {
	return attrMatches(scheme.CardType, attrs.CardType) &&
		attrMatches(scheme.BrandType, attrs.BrandType) &&
		attrMatches(scheme.CardClassification, attrs.CardClassification)
}

func attrMatches(schemeAttr *string, value string) bool {
	if value == "" {
		return schemeAttr == nil
	}
	return schemeAttr != nil && *schemeAttr == value
}

func normalizeAttr(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*value))
	if v == "" {
		return nil
	}
	return &v
}

func normalizeBrand(value *string) *string {
	if value == nil {
		return nil
	}
	v := schemedomain.CanonicalBrand(*value)
	if v == "" {
		return nil
	}
	return &v
}
