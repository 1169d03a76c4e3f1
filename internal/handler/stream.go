package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// heartbeatEvery keeps idle proxies from closing the stream.
var heartbeatEvery = 20 * time.Second

// streamBookings subscribes and writes every delivered list as a
// server-sent "bookings" event until the client goes away.  Only the
// latest pending list is kept when the client reads slower than changes
// arrive; each event is the complete list so nothing is lost.
func streamBookings(c echo.Context, log *slog.Logger, subscribe func(func([]model.Booking)) (func(), error)) error {
	updates := make(chan []model.Booking, 1)
	unsubscribe, err := subscribe(func(bs []model.Booking) {
		select {
		case <-updates:
		default:
		}
		updates <- bs
	})
	if err != nil {
		return respondError(c, log, err)
	}
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case bs := <-updates:
			data, err := json.Marshal(bs)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: bookings\ndata: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
