package handler // handler defines http handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

// slotHint accompanies every SlotUnavailable response.
const slotHint = "try a different time or table type"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// respondError maps an engine error to its HTTP status.  Unexpected
// errors are logged and hidden behind a generic 500.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	var (
		status int
		body   errorBody
	)
	switch {
	case errors.Is(err, service.ErrValidation):
		status, body = http.StatusBadRequest, errorBody{Error: "validation_error", Message: service.Detail(err)}
	case errors.Is(err, service.ErrUnauthorized):
		status, body = http.StatusForbidden, errorBody{Error: "unauthorized", Message: service.Detail(err)}
	case errors.Is(err, service.ErrNotFound):
		status, body = http.StatusNotFound, errorBody{Error: "not_found", Message: service.Detail(err)}
	case errors.Is(err, service.ErrSlotUnavailable):
		status, body = http.StatusConflict, errorBody{Error: "slot_unavailable", Message: service.Detail(err), Hint: slotHint}
	case errors.Is(err, service.ErrInvalidTransition):
		status, body = http.StatusConflict, errorBody{Error: "invalid_transition", Message: service.Detail(err)}
	case errors.Is(err, service.ErrServiceUnavailable):
		log.Error("store unavailable", "path", c.Path(), "err", err)
		status, body = http.StatusServiceUnavailable, errorBody{Error: "service_unavailable", Message: "please retry shortly"}
	default:
		log.Error("unexpected error", "path", c.Path(), "err", err)
		status, body = http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal error"}
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_error", Message: msg})
}

// parseFilter reads restaurant_id, status (comma separated), from, to and
// order=asc|desc from the query string.
func parseFilter(c echo.Context) (model.BookingFilter, error) {
	f := model.BookingFilter{
		RestaurantID: strings.TrimSpace(c.QueryParam("restaurant_id")),
		From:         strings.TrimSpace(c.QueryParam("from")),
		To:           strings.TrimSpace(c.QueryParam("to")),
	}
	if raw := c.QueryParam("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			s, ok := model.ParseStatus(part)
			if !ok {
				return f, errors.New("unknown status " + part)
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "desc":
	case "asc":
		f.Ascending = true
	default:
		return f, errors.New("order must be asc or desc")
	}
	return f, nil
}

func loggerOr(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
