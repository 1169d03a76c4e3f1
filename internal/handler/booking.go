package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// BookingHandler serves the customer endpoints.  JWTAuth and RequireRole
// run first; ownership is enforced by the engine.
type BookingHandler struct {
	Engine *service.Engine
	Log    *slog.Logger
}

// NewBookingHandler panics when engine is nil.
func NewBookingHandler(engine *service.Engine, log *slog.Logger) *BookingHandler {
	if engine == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: engine, Log: loggerOr(log)}
}

// Create handles POST /v1/bookings.  The owner always comes from the token.
func (h *BookingHandler) Create(c echo.Context) error {
	var req service.ReserveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.OwnerID = middleware.OwnerID(c)
	b, err := h.Engine.Reserve(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("booking created", "booking_id", b.ID, "owner_id", b.OwnerID, "restaurant_id", b.RestaurantID, "status", b.Status)
	return c.JSON(http.StatusCreated, b)
}

// ListMine handles GET /v1/my-bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	bs, err := h.Engine.ListByOwner(c.Request().Context(), middleware.OwnerID(c), f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if bs == nil {
		bs = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs, "count": len(bs)})
}

// StreamMine handles GET /v1/my-bookings/stream as server-sent events.
func (h *BookingHandler) StreamMine(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	owner := middleware.OwnerID(c)
	return streamBookings(c, h.Log, func(onChange func([]model.Booking)) (func(), error) {
		return h.Engine.Subscribe(owner, f, onChange)
	})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.Engine.GetBooking(c.Request().Context(), c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Update handles PATCH /v1/bookings/:id.  Only special_requests may be sent.
func (h *BookingHandler) Update(c echo.Context) error {
	var patch model.BookingPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid request body")
	}
	b, err := h.Engine.UpdateBooking(c.Request().Context(), c.Param("id"), middleware.OwnerID(c), patch)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles POST /v1/bookings/:id/cancel with an optional reason.
func (h *BookingHandler) Cancel(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	b, err := h.Engine.Cancel(c.Request().Context(), c.Param("id"), middleware.OwnerID(c), strings.TrimSpace(body.Reason))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("booking cancelled", "booking_id", b.ID, "owner_id", b.OwnerID)
	return c.JSON(http.StatusOK, b)
}
