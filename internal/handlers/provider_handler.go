package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httpresp"
	"github.com/BruksfildServices01/marketplace-exchange/internal/usecase/booking"
)

// ProviderHandler serves the calendar views of a provider. They are public:
// a requester needs them before any transaction exists.
type ProviderHandler struct {
	resolver *booking.Resolver
}

func NewProviderHandler(resolver *booking.Resolver) *ProviderHandler {
	return &ProviderHandler{resolver: resolver}
}

func providerID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		httperr.BadRequest(c, "invalid_provider_id", "provider id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// Availability answers GET /providers/:id/availability?start=&end=.
// Wall-clock times are read in the provider's zone.
func (h *ProviderHandler) Availability(c *gin.Context) {
	id, ok := providerID(c)
	if !ok {
		return
	}
	if c.Query("start") == "" || c.Query("end") == "" {
		httperr.BadRequest(c, "missing_range", "start and end are required")
		return
	}

	loc, err := h.resolver.Location(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	start, err := parseTime(c.Query("start"), loc)
	if err != nil {
		httperr.BadRequest(c, "invalid_start", "start must be RFC 3339 or "+timeFormatHint)
		return
	}
	end, err := parseTime(c.Query("end"), loc)
	if err != nil {
		httperr.BadRequest(c, "invalid_end", "end must be RFC 3339 or "+timeFormatHint)
		return
	}

	got, err := h.resolver.CheckAvailability(c.Request.Context(), id, start.UTC(), end.UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, gin.H{
		"provider_id":  id,
		"start":        start.In(loc).Format(booking.Layout),
		"end":          end.In(loc).Format(booking.Layout),
		"availability": got,
	})
}

func (h *ProviderHandler) Calendar(c *gin.Context) {
	id, ok := providerID(c)
	if !ok {
		return
	}
	feed, err := h.resolver.BuildCalendarFeed(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, feed)
}

func (h *ProviderHandler) WeeklyMask(c *gin.Context) {
	id, ok := providerID(c)
	if !ok {
		return
	}
	m, err := h.resolver.WeeklyMask(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, m)
}

// DisabledWindows answers GET /providers/:id/disabled-windows. slot_minutes
// defaults to 60; from and to optionally bound the search.
func (h *ProviderHandler) DisabledWindows(c *gin.Context) {
	id, ok := providerID(c)
	if !ok {
		return
	}

	minutes, err := strconv.Atoi(c.DefaultQuery("slot_minutes", "60"))
	if err != nil || minutes <= 0 {
		httperr.BadRequest(c, "invalid_slot", "slot_minutes must be a positive integer")
		return
	}

	var from, to time.Time
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			httperr.BadRequest(c, "invalid_from", "from must be RFC 3339")
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			httperr.BadRequest(c, "invalid_to", "to must be RFC 3339")
			return
		}
	}

	windows, err := h.resolver.DisabledWindows(
		c.Request.Context(),
		id,
		time.Duration(minutes)*time.Minute,
		from,
		to,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.List(c, windows)
}
