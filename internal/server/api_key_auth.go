package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	partnerdomain "github.com/pulsepaylabs/pulsepay/internal/partner/domain"
)

const contextPartnerKey = "partner"

// APIKeyRequired authenticates requests with a bearer API key and resolves
// the calling partner. Partner identity is derived solely from the key.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := partnerdomain.HashAPIKey(parts[1])
		partner, err := s.partnerRepo.FindByAPIKeyHash(c.Request.Context(), s.db, hash)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if partner == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextPartnerKey, partner)
		c.Next()
	}
}

func callingPartner(c *gin.Context) *partnerdomain.Partner {
	value, ok := c.Get(contextPartnerKey)
	if !ok {
		return nil
	}
	partner, _ := value.(*partnerdomain.Partner)
	return partner
}

// requireAdmin gates operator-only endpoints.
func requireAdmin(c *gin.Context) *partnerdomain.Partner {
	partner := callingPartner(c)
	if partner == nil || partner.Role != partnerdomain.RoleAdmin {
		AbortWithError(c, ErrForbidden)
		return nil
	}
	return partner
}
