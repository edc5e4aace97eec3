package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
	"github.com/pulsepaylabs/pulsepay/pkg/db/pagination"
)

type instantSettlementRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// SettleInstant runs an on-demand T+0 batch over the caller's transactions.
// The structured summary is returned even on partial success.
func (s *Server) SettleInstant(c *gin.Context) {
	partner := callingPartner(c)
	if partner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if partner.Role != partnerdomain.RoleRetailer {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req instantSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if len(req.TransactionIDs) == 0 {
		AbortWithError(c, newValidationError("transaction_ids", "required", "at least one transaction id is required"))
		return
	}

	ids := make([]snowflake.ID, 0, len(req.TransactionIDs))
	for _, raw := range req.TransactionIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			AbortWithError(c, newValidationError("transaction_ids", "invalid_id", "transaction id must be a valid snowflake"))
			return
		}
		ids = append(ids, id)
	}

	summary, err := s.settlementSvc.SettleInstant(c.Request.Context(), partner.ID, ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, summary)
}

func (s *Server) GetBatch(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "batch id must be a valid snowflake"))
		return
	}

	detail, err := s.settlementSvc.GetBatch(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Retailers may only read their own batches.
	partner := callingPartner(c)
	if partner != nil && partner.Role == partnerdomain.RoleRetailer && detail.Batch.RetailerID != partner.ID {
		AbortWithError(c, ErrForbidden)
		return
	}
	respondData(c, detail)
}

func (s *Server) ListBatches(c *gin.Context) {
	partner := callingPartner(c)
	if partner == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	retailerID := snowflake.ID(0)
	if partner.Role == partnerdomain.RoleRetailer {
		retailerID = partner.ID
	} else if raw := strings.TrimSpace(c.Query("retailer_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("retailer_id", "invalid_id", "retailer id must be a valid snowflake"))
			return
		}
		retailerID = id
	}

	batches, pageInfo, err := s.settlementSvc.ListBatches(c.Request.Context(), retailerID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, batches, pageInfo)
}

// RunSweepNow triggers a T+1 sweep outside the schedule. A sweep already in
// flight answers 409.
func (s *Server) RunSweepNow(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	report, err := s.sched.RunNow(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, report)
}
