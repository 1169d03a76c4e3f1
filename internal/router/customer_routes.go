package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
)

// RegisterCustomer registers customer-scoped endpoints under /v1.  All
// routes require a valid JWT and the CUSTOMER role.  createLimit guards
// booking creation and runs after authentication so it can key on the
// owner.
func RegisterCustomer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, createLimit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	if createLimit != nil {
		g.POST("/bookings", h.Create, createLimit)
	} else {
		g.POST("/bookings", h.Create)
	}
	g.GET("/my-bookings", h.ListMine)
	g.GET("/my-bookings/stream", h.StreamMine)
	g.GET("/bookings/:id", h.Get)
	g.PATCH("/bookings/:id", h.Update)
	g.POST("/bookings/:id/cancel", h.Cancel)
}
