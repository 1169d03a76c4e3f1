package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// OperatorHandler serves restaurant staff.  Authority over a restaurant
// comes from the token's restaurants claim and is checked by the engine.
type OperatorHandler struct {
	Engine *service.Engine
	Log    *slog.Logger
}

// NewOperatorHandler panics when engine is nil.
func NewOperatorHandler(engine *service.Engine, log *slog.Logger) *OperatorHandler {
	if engine == nil {
		panic("nil engine passed to NewOperatorHandler")
	}
	return &OperatorHandler{Engine: engine, Log: loggerOr(log)}
}

// ListBookings handles GET /v1/operator/restaurants/:id/bookings.
func (h *OperatorHandler) ListBookings(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	bs, err := h.Engine.ListByRestaurant(c.Request().Context(), middleware.Operator(c), c.Param("id"), f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if bs == nil {
		bs = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bs, "count": len(bs)})
}

// StreamBookings handles GET /v1/operator/restaurants/:id/bookings/stream.
func (h *OperatorHandler) StreamBookings(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	op, restaurantID := middleware.Operator(c), c.Param("id")
	return streamBookings(c, h.Log, func(onChange func([]model.Booking)) (func(), error) {
		return h.Engine.SubscribeRestaurant(op, restaurantID, f, onChange)
	})
}

// Transition handles POST /v1/operator/bookings/:id/transition with body
// {"status": "confirmed|cancelled|completed|no-show", "reason": "..."}.
func (h *OperatorHandler) Transition(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	target, ok := model.ParseStatus(body.Status)
	if !ok {
		return badRequest(c, "status must be one of confirmed, cancelled, completed, no-show")
	}
	op := middleware.Operator(c)
	b, err := h.Engine.Transition(c.Request().Context(), c.Param("id"), op, target, body.Reason)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("booking transitioned", "booking_id", b.ID, "operator_id", op.OperatorID, "status", b.Status)
	return c.JSON(http.StatusOK, b)
}
