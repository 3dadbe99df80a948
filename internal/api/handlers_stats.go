// handlers_stats.go - Interaction statistics handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StatsHandlerImpl implements the StatsHandler interface
type StatsHandlerImpl struct {
	stats StatsSource
}

// NewStatsHandler creates a new stats handler. A nil source reports the
// journal as unavailable.
func NewStatsHandler(stats StatsSource) StatsHandler {
	return &StatsHandlerImpl{stats: stats}
}

// HandleAreaStats returns interaction counts per area of a widget
func (h *StatsHandlerImpl) HandleAreaStats(c echo.Context) error {
	if h.stats == nil {
		return NewServiceUnavailableError("journal is disabled")
	}

	id := c.Param("id")
	stats, err := h.stats.AreaStats(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to query stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleEventCount returns the number of recorded events
func (h *StatsHandlerImpl) HandleEventCount(c echo.Context) error {
	if h.stats == nil {
		return NewServiceUnavailableError("journal is disabled")
	}

	n, err := h.stats.Count(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to count events", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"events": n})
}
