package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httpresp"
	"github.com/BruksfildServices01/marketplace-exchange/internal/middleware"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
)

// AvailabilityHandler lets the caller read and replace their open hours.
type AvailabilityHandler struct {
	resolver *booking.Resolver
}

func NewAvailabilityHandler(resolver *booking.Resolver) *AvailabilityHandler {
	return &AvailabilityHandler{resolver: resolver}
}

type AvailabilityUpdateRequest struct {
	Weekdays []int `json:"weekdays" binding:"required"`
	Hours    []int `json:"hours" binding:"required"`
}

func (h *AvailabilityHandler) Get(c *gin.Context) {
	m, err := h.resolver.WeeklyMask(c.Request.Context(), middleware.PersonID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, m)
}

func (h *AvailabilityHandler) Update(c *gin.Context) {
	var req AvailabilityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", err.Error())
		return
	}

	m, err := h.resolver.UpdateAvailability(
		c.Request.Context(),
		middleware.PersonID(c),
		req.Weekdays,
		req.Hours,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, m)
}
