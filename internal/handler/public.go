package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// PublicHandler serves unauthenticated restaurant and availability reads.
type PublicHandler struct {
	Engine *service.Engine
	Log    *slog.Logger
}

// NewPublicHandler panics when engine is nil.
func NewPublicHandler(engine *service.Engine, log *slog.Logger) *PublicHandler {
	if engine == nil {
		panic("nil engine passed to NewPublicHandler")
	}
	return &PublicHandler{Engine: engine, Log: loggerOr(log)}
}

// GetRestaurant handles GET /v1/restaurants/:id.
func (h *PublicHandler) GetRestaurant(c echo.Context) error {
	r, err := h.Engine.Restaurant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// GetAvailability handles GET /v1/restaurants/:id/availability?date=&party_size=.
// An empty list is a normal answer, not an error.
func (h *PublicHandler) GetAvailability(c echo.Context) error {
	date := strings.TrimSpace(c.QueryParam("date"))
	if date == "" {
		return badRequest(c, "date is required")
	}
	party, err := strconv.Atoi(c.QueryParam("party_size"))
	if err != nil {
		return badRequest(c, "party_size must be a positive integer")
	}
	slots, err := h.Engine.ComputeAvailability(c.Request().Context(), c.Param("id"), date, party)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"restaurant_id": c.Param("id"),
		"date":          date,
		"party_size":    party,
		"slots":         slots,
	})
}
