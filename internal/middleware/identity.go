package middleware

// identity.go exposes the caller identity stored by JWTAuth to handlers
// and to other middleware.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// OwnerID returns the authenticated subject, or "" when unauthenticated.
func OwnerID(c echo.Context) string {
	s, _ := c.Get(CtxOwnerID).(string)
	return s
}

// Operator returns the operator identity for the current request.
// Authority over a particular restaurant is decided by the engine.
func Operator(c echo.Context) service.OperatorContext {
	role, _ := c.Get(CtxRole).(string)
	ids, _ := c.Get(CtxRestaurants).([]string)
	return service.OperatorContext{OperatorID: OwnerID(c), Role: role, RestaurantIDs: ids}
}

// rateSubject identifies the caller for rate limiting, falling back to the
// client IP for anonymous requests.
func rateSubject(c echo.Context) string {
	if id := OwnerID(c); id != "" {
		return "owner:" + id
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func strconvInt(n int64) string { return strconv.FormatInt(n, 10) }
