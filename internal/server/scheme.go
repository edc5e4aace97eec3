package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	schemedomain "github.com/pulsepaylabs/pulsepay/internal/scheme/domain"
	"github.com/shopspring/decimal"
)

type createSchemeRequest struct {
	Scope              string  `json:"scope"`
	OwnerRetailerID    *string `json:"owner_retailer_id,omitempty"`
	Mode               string  `json:"mode"`
	CardType           *string `json:"card_type,omitempty"`
	BrandType          *string `json:"brand_type,omitempty"`
	CardClassification *string `json:"card_classification,omitempty"`
	RetailerMDRT1      string  `json:"retailer_mdr_t1"`
	DistributorMDRT1   string  `json:"distributor_mdr_t1"`
	RetailerMDRT0      string  `json:"retailer_mdr_t0"`
	DistributorMDRT0   string  `json:"distributor_mdr_t0"`
	EffectiveDate      *string `json:"effective_date,omitempty"`
}

func (s *Server) CreateScheme(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	var req createSchemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	create := schemedomain.CreateSchemeRequest{
		Scope:              schemedomain.Scope(strings.TrimSpace(req.Scope)),
		Mode:               schemedomain.Mode(strings.TrimSpace(req.Mode)),
		CardType:           req.CardType,
		BrandType:          req.BrandType,
		CardClassification: req.CardClassification,
	}

	if req.OwnerRetailerID != nil {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.OwnerRetailerID))
		if err != nil {
			AbortWithError(c, newValidationError("owner_retailer_id", "invalid_id", "owner retailer id must be a valid snowflake"))
			return
		}
		create.OwnerRetailerID = &id
	}

	rates := []struct {
		field string
		raw   string
		dst   *decimal.Decimal
	}{
		{"retailer_mdr_t1", req.RetailerMDRT1, &create.RetailerMDRT1},
		{"distributor_mdr_t1", req.DistributorMDRT1, &create.DistributorMDRT1},
		{"retailer_mdr_t0", req.RetailerMDRT0, &create.RetailerMDRT0},
		{"distributor_mdr_t0", req.DistributorMDRT0, &create.DistributorMDRT0},
	}
	for _, rate := range rates {
		value, err := decimal.NewFromString(strings.TrimSpace(rate.raw))
		if err != nil {
			AbortWithError(c, newValidationError(rate.field, "invalid_rate", "rate must be a decimal percentage"))
			return
		}
		*rate.dst = value
	}

	if req.EffectiveDate != nil {
		at, err := time.Parse(time.RFC3339, *req.EffectiveDate)
		if err != nil {
			AbortWithError(c, newValidationError("effective_date", "invalid_time", "effective date must be RFC3339"))
			return
		}
		create.EffectiveDate = at
	}

	scheme, err := s.schemeSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, scheme)
}

func (s *Server) ListSchemes(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	filter := schemedomain.ListFilter{
		Scope:  schemedomain.Scope(strings.TrimSpace(c.Query("scope"))),
		Mode:   schemedomain.Mode(strings.ToUpper(strings.TrimSpace(c.Query("mode")))),
		Status: schemedomain.Status(strings.TrimSpace(c.Query("status"))),
	}
	if raw := strings.TrimSpace(c.Query("owner_retailer_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("owner_retailer_id", "invalid_id", "owner retailer id must be a valid snowflake"))
			return
		}
		filter.OwnerRetailerID = &id
	}

	schemes, err := s.schemeSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, schemes)
}

func (s *Server) GetScheme(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "scheme id must be a valid snowflake"))
		return
	}

	scheme, err := s.schemeSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, scheme)
}

// DeactivateScheme flips the status; schemes are never deleted so settled
// transactions keep a resolvable rate reference.
func (s *Server) DeactivateScheme(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "scheme id must be a valid snowflake"))
		return
	}

	if err := s.schemeSvc.Deactivate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"id": id.String(), "status": schemedomain.StatusInactive})
}
