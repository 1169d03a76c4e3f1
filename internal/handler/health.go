package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Health is a liveness probe; it returns ok while the process serves.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Ready runs every check with a short timeout and answers 503 listing the
// failures when any dependency is down.
func Ready(checks ...ReadyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		failures := map[string]string{}
		for _, rc := range checks {
			if rc.Check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			err := rc.Check(ctx)
			cancel()
			if err != nil {
				failures[rc.Name] = err.Error()
			}
		}
		if len(failures) > 0 {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "failures": failures})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}
