package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
)

// RegisterOperator registers restaurant staff endpoints under
// /v1/operator.  All routes require a valid JWT and the OPERATOR role;
// which restaurants an operator may act on is decided per request.
func RegisterOperator(e *echo.Echo, h *handler.OperatorHandler, jwtSecret string) {
	g := e.Group(
		"/v1/operator",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOperator),
	)
	g.GET("/restaurants/:id/bookings", h.ListBookings)
	g.GET("/restaurants/:id/bookings/stream", h.StreamBookings)
	g.POST("/bookings/:id/transition", h.Transition)
}
