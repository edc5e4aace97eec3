package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (schemedomain.Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schemedomain.Scheme{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node}), node
}

func strp(s string) *string { return &s }

func rate(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func createScheme(t *testing.T, svc schemedomain.Service, req schemedomain.CreateSchemeRequest) *schemedomain.Scheme {
	t.Helper()
	if req.RetailerMDRT1.IsZero() && req.DistributorMDRT1.IsZero() {
		req.RetailerMDRT1 = rate("1.0")
		req.DistributorMDRT1 = rate("0.8")
	}
	if req.RetailerMDRT0.IsZero() && req.DistributorMDRT0.IsZero() {
		req.RetailerMDRT0 = rate("1.2")
		req.DistributorMDRT0 = rate("1.0")
	}
	scheme, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return scheme
}

func TestCreateValidation(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	tests := []struct {
		name    string
		req     schemedomain.CreateSchemeRequest
		wantErr error
	}{
		{
			name: "unknown mode",
			req: schemedomain.CreateSchemeRequest{
				Scope: schemedomain.ScopeGlobal,
				Mode:  "WALLET",
			},
			wantErr: schemedomain.ErrInvalidMode,
		},
		{
			name: "custom scope without owner",
			req: schemedomain.CreateSchemeRequest{
				Scope: schemedomain.ScopeCustom,
				Mode:  schemedomain.ModeCard,
			},
			wantErr: schemedomain.ErrOwnerRequired,
		},
		{
			name: "distributor rate above retailer rate",
			req: schemedomain.CreateSchemeRequest{
				Scope:            schemedomain.ScopeGlobal,
				Mode:             schemedomain.ModeCard,
				RetailerMDRT1:    rate("0.5"),
				DistributorMDRT1: rate("0.8"),
				RetailerMDRT0:    rate("1.2"),
				DistributorMDRT0: rate("1.0"),
			},
			wantErr: schemedomain.ErrNegativeMargin,
		},
		{
			name: "negative rate",
			req: schemedomain.CreateSchemeRequest{
				Scope:            schemedomain.ScopeGlobal,
				Mode:             schemedomain.ModeCard,
				RetailerMDRT1:    rate("1.0"),
				DistributorMDRT1: rate("-0.1"),
				RetailerMDRT0:    rate("1.2"),
				DistributorMDRT0: rate("1.0"),
			},
			wantErr: schemedomain.ErrInvalidScheme,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	custom := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:           schemedomain.ScopeCustom,
		OwnerRetailerID: &retailerID,
		Mode:            schemedomain.ModeCard,
	})
	assert.Equal(t, schemedomain.StatusActive, custom.Status)
	assert.False(t, custom.EffectiveDate.IsZero())
}

func TestResolveRelaxationLadder(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	// Most specific: explicit type, brand, and classification.
	exact := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:              schemedomain.ScopeGlobal,
		Mode:               schemedomain.ModeCard,
		CardType:           strp("CREDIT"),
		BrandType:          strp("VISA"),
		CardClassification: strp("PLATINUM"),
	})
	// Brand-level fallback with the classification column left open.
	brandOnly := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:     schemedomain.ScopeGlobal,
		Mode:      schemedomain.ModeCard,
		CardType:  strp("CREDIT"),
		BrandType: strp("VISA"),
	})
	// Type-level fallback.
	typeOnly := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:    schemedomain.ScopeGlobal,
		Mode:     schemedomain.ModeCard,
		CardType: strp("CREDIT"),
	})
	// Catch-all for the mode.
	catchAll := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope: schemedomain.ScopeGlobal,
		Mode:  schemedomain.ModeCard,
	})

	tests := []struct {
		name  string
		attrs schemedomain.Attributes
		want  snowflake.ID
	}{
		{
			name: "full attribute match wins",
			attrs: schemedomain.Attributes{
				Mode:               schemedomain.ModeCard,
				CardType:           "CREDIT",
				BrandType:          "VISA",
				CardClassification: "PLATINUM",
			},
			want: exact.ID,
		},
		{
			name: "unknown classification relaxes to brand level",
			attrs: schemedomain.Attributes{
				Mode:               schemedomain.ModeCard,
				CardType:           "CREDIT",
				BrandType:          "VISA",
				CardClassification: "CORPORATE",
			},
			want: brandOnly.ID,
		},
		{
			name: "unknown brand relaxes to card type level",
			attrs: schemedomain.Attributes{
				Mode:      schemedomain.ModeCard,
				CardType:  "CREDIT",
				BrandType: "RUPAY",
			},
			want: typeOnly.ID,
		},
		{
			name: "unknown card type falls through to catch-all",
			attrs: schemedomain.Attributes{
				Mode:     schemedomain.ModeCard,
				CardType: "PREPAID",
			},
			want: catchAll.ID,
		},
		{
			name:  "no attributes at all match only the catch-all",
			attrs: schemedomain.Attributes{Mode: schemedomain.ModeCard},
			want:  catchAll.ID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Resolve(context.Background(), retailerID, tt.attrs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestResolveCustomBeatsGlobal(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()
	otherRetailer := node.Generate()

	createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:    schemedomain.ScopeGlobal,
		Mode:     schemedomain.ModeCard,
		CardType: strp("CREDIT"),
	})
	mine := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:           schemedomain.ScopeCustom,
		OwnerRetailerID: &retailerID,
		Mode:            schemedomain.ModeCard,
		CardType:        strp("CREDIT"),
	})
	theirs := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:           schemedomain.ScopeCustom,
		OwnerRetailerID: &otherRetailer,
		Mode:            schemedomain.ModeCard,
		CardType:        strp("CREDIT"),
	})

	attrs := schemedomain.Attributes{Mode: schemedomain.ModeCard, CardType: "CREDIT"}

	got, err := svc.Resolve(context.Background(), retailerID, attrs)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	got, err = svc.Resolve(context.Background(), otherRetailer, attrs)
	require.NoError(t, err)
	assert.Equal(t, theirs.ID, got.ID)
}

func TestResolveSpecificGlobalBeatsRelaxedCustom(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	// Custom precedence applies within a relaxation level, not across levels:
	// a global scheme matching the full attribute tuple wins over a custom
	// scheme that only matches after the brand is dropped.
	global := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:     schemedomain.ScopeGlobal,
		Mode:      schemedomain.ModeCard,
		CardType:  strp("CREDIT"),
		BrandType: strp("VISA"),
	})
	createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:           schemedomain.ScopeCustom,
		OwnerRetailerID: &retailerID,
		Mode:            schemedomain.ModeCard,
		CardType:        strp("CREDIT"),
	})

	got, err := svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{
		Mode:      schemedomain.ModeCard,
		CardType:  "CREDIT",
		BrandType: "VISA",
	})
	require.NoError(t, err)
	assert.Equal(t, global.ID, got.ID)
}

func TestResolveBrandAlias(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	scheme := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:     schemedomain.ScopeGlobal,
		Mode:      schemedomain.ModeCard,
		CardType:  strp("CREDIT"),
		BrandType: strp("MASTER_CARD"),
	})
	require.NotNil(t, scheme.BrandType)
	assert.Equal(t, "MASTERCARD", *scheme.BrandType)

	got, err := svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{
		Mode:      schemedomain.ModeCard,
		CardType:  "credit",
		BrandType: "MasterCard",
	})
	require.NoError(t, err)
	assert.Equal(t, scheme.ID, got.ID)
}

func TestResolveEffectiveDateTieBreak(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:         schemedomain.ScopeGlobal,
		Mode:          schemedomain.ModeCard,
		CardType:      strp("CREDIT"),
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	newer := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:         schemedomain.ScopeGlobal,
		Mode:          schemedomain.ModeCard,
		CardType:      strp("CREDIT"),
		EffectiveDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	got, err := svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{
		Mode:     schemedomain.ModeCard,
		CardType: "CREDIT",
	})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestResolveIgnoresFutureEffectiveDate(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	current := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:         schemedomain.ScopeGlobal,
		Mode:          schemedomain.ModeCard,
		CardType:      strp("CREDIT"),
		EffectiveDate: time.Now().UTC().Add(-24 * time.Hour),
	})
	createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:           schemedomain.ScopeCustom,
		OwnerRetailerID: &retailerID,
		Mode:            schemedomain.ModeCard,
		CardType:        strp("CREDIT"),
		EffectiveDate:   time.Now().UTC().AddDate(0, 1, 0),
	})

	got, err := svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{
		Mode:     schemedomain.ModeCard,
		CardType: "CREDIT",
	})
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)

	// Only future-dated schemes exist for UPI; nothing resolves yet.
	createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope:         schemedomain.ScopeGlobal,
		Mode:          schemedomain.ModeUPI,
		EffectiveDate: time.Now().UTC().AddDate(0, 1, 0),
	})
	_, err = svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{
		Mode: schemedomain.ModeUPI,
	})
	require.ErrorIs(t, err, schemedomain.ErrSchemeNotFound)
}

func TestResolveNotFound(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope: schemedomain.ScopeGlobal,
		Mode:  schemedomain.ModeCard,
	})

	_, err := svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{
		Mode: schemedomain.ModeUPI,
	})
	require.ErrorIs(t, err, schemedomain.ErrSchemeNotFound)

	_, err = svc.Resolve(context.Background(), retailerID, schemedomain.Attributes{Mode: "WALLET"})
	require.ErrorIs(t, err, schemedomain.ErrInvalidMode)
}

func TestDeactivateRemovesFromResolution(t *testing.T) {
	svc, node := newTestService(t)
	retailerID := node.Generate()

	scheme := createScheme(t, svc, schemedomain.CreateSchemeRequest{
		Scope: schemedomain.ScopeGlobal,
		Mode:  schemedomain.ModeCard,
	})

	attrs := schemedomain.Attributes{Mode: schemedomain.ModeCard}
	_, err := svc.Resolve(context.Background(), retailerID, attrs)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), scheme.ID))

	_, err = svc.Resolve(context.Background(), retailerID, attrs)
	require.ErrorIs(t, err, schemedomain.ErrSchemeNotFound)

	// The scheme row itself survives deactivation.
	kept, err := svc.Get(context.Background(), scheme.ID)
	require.NoError(t, err)
	assert.Equal(t, schemedomain.StatusInactive, kept.Status)
}
