package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/handler"
)

// RegisterPublic registers routes that do not require authentication:
// liveness, readiness and the restaurant and availability reads.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, checks ...handler.ReadyCheck) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks...))

	e.GET("/v1/restaurants/:id", p.GetRestaurant)
	// Availability is a snapshot; reserving re-checks capacity.
	e.GET("/v1/restaurants/:id/availability", p.GetAvailability)
}
