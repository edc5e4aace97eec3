package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/pulsepaylabs/pulsepay/internal/scheduler"
)

func (s *Server) GetSchedule(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	settings, err := s.sched.Settings().Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, settings)
}

type updateScheduleRequest struct {
	ScheduleHour   int    `json:"schedule_hour"`
	ScheduleMinute int    `json:"schedule_minute"`
	Timezone       string `json:"timezone"`
	IsEnabled      bool   `json:"is_enabled"`
}

// UpdateSchedule persists the new schedule only; the running scheduler picks
// it up on its next poll cycle.
func (s *Server) UpdateSchedule(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	settings, err := s.sched.Settings().Update(c.Request.Context(), scheduler.UpdateScheduleRequest{
		ScheduleHour:   req.ScheduleHour,
		ScheduleMinute: req.ScheduleMinute,
		Timezone:       req.Timezone,
		IsEnabled:      req.IsEnabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, settings)
}

type setPauseRequest struct {
	Paused bool `json:"paused"`
}

// SetSettlementPause excludes a retailer or distributor subtree from the
// nightly sweep. Paused transactions stay open and settle once unpaused.
func (s *Server) SetSettlementPause(c *gin.Context) {
	if requireAdmin(c) == nil {
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "partner id must be a valid snowflake"))
		return
	}

	var req setPauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.partnerRepo.SetT1Paused(c.Request.Context(), s.db, id, req.Paused); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"id": id.String(), "t1_settlement_paused": req.Paused})
}
