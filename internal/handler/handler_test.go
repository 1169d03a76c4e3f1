package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/router"
	"github.com/iliyamo/restaurant-reservation/internal/service"
	"github.com/iliyamo/restaurant-reservation/internal/subscription"
	"github.com/iliyamo/restaurant-reservation/internal/utils"
)

const secret = "handler-secret"

var now = time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

type api struct {
	e      *echo.Echo
	engine *service.Engine
}

func newAPI(t *testing.T, checks ...handler.ReadyCheck) *api {
	t.Helper()
	store := repository.NewMemoryBookingStore()
	dir := repository.NewStaticDirectory(model.Restaurant{
		ID:       "bistro",
		Name:     "Bistro",
		Timezone: "UTC",
		Tables:   []model.TableInventory{{TableType: model.TableStandard, Capacity: 4, Count: 1}},
		Hours:    []model.ServiceHours{{Weekday: time.Sunday, Opens: "17:00", Closes: "22:00"}},
	})
	broker := subscription.NewBroker(store, nil)
	t.Cleanup(broker.Close)
	engine := service.NewEngine(service.Deps{
		Store:     store,
		Directory: dir,
		Broker:    broker,
		Now:       func() time.Time { return now },
	}, service.Config{ReserveBackoff: -1, StoreBackoff: -1})

	e := echo.New()
	router.RegisterPublic(e, handler.NewPublicHandler(engine, nil), checks...)
	router.RegisterCustomer(e, handler.NewBookingHandler(engine, nil), secret, nil)
	router.RegisterOperator(e, handler.NewOperatorHandler(engine, nil), secret)
	return &api{e: e, engine: engine}
}

func token(t *testing.T, sub, role string, restaurants ...string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, role, restaurants, 10)
	require.NoError(t, err)
	return tok.Token
}

func (a *api) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

type errResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const reserveBody = `{"restaurant_id":"bistro","date":"2024-12-01","time":"19:00","party_size":2,"table_type":"standard","contact":{"name":"Ann Lee","email":"ann@example.com"}}`

func TestCreateBookingAndConflict(t *testing.T) {
	a := newAPI(t)
	ann := token(t, "ann", "customer")

	rec := a.do(t, http.MethodPost, "/v1/bookings", ann, reserveBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[model.Booking](t, rec)
	assert.Equal(t, "ann", b.OwnerID)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.NotEmpty(t, b.ConfirmationCode)

	rec = a.do(t, http.MethodPost, "/v1/bookings", token(t, "bob", "CUSTOMER"), reserveBody)
	require.Equal(t, http.StatusConflict, rec.Code)
	e := decode[errResp](t, rec)
	assert.Equal(t, "slot_unavailable", e.Error)
	assert.Equal(t, "try a different time or table type", e.Hint)
}

func TestCreateBookingErrors(t *testing.T) {
	a := newAPI(t)
	ann := token(t, "ann", "CUSTOMER")

	rec := a.do(t, http.MethodPost, "/v1/bookings", "", reserveBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/bookings", token(t, "op", "OPERATOR", "bistro"), reserveBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/bookings", ann, strings.Replace(reserveBody, `"party_size":2`, `"party_size":0`, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[errResp](t, rec).Error)

	rec = a.do(t, http.MethodPost, "/v1/bookings", ann, strings.Replace(reserveBody, `"bistro"`, `"nowhere"`, 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/bookings", ann, `{"party_size":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	ann := token(t, "ann", "CUSTOMER")
	rec := a.do(t, http.MethodPost, "/v1/bookings", ann, reserveBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[model.Booking](t, rec)

	rec = a.do(t, http.MethodGet, "/v1/bookings/"+b.ID, ann, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/bookings/"+b.ID, token(t, "bob", "CUSTOMER"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/bookings/missing", ann, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPatch, "/v1/bookings/"+b.ID, ann, `{"date":"2024-12-02"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPatch, "/v1/bookings/"+b.ID, ann, `{"special_requests":"window seat","id":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPatch, "/v1/bookings/"+b.ID, ann, `{"special_requests":"window seat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "window seat", decode[model.Booking](t, rec).SpecialRequests)

	rec = a.do(t, http.MethodPost, "/v1/operator/bookings/"+b.ID+"/transition", token(t, "op", "OPERATOR", "elsewhere"), `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/operator/bookings/"+b.ID+"/transition", token(t, "op", "OPERATOR", "bistro"), `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/operator/bookings/"+b.ID+"/transition", token(t, "op", "OPERATOR", "bistro"), `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusConfirmed, decode[model.Booking](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", ann, `{"reason":"plans changed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[model.Booking](t, rec)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.CancellationReason)

	rec = a.do(t, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", ann, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[errResp](t, rec).Error)
}

func TestListings(t *testing.T) {
	a := newAPI(t)
	ann := token(t, "ann", "CUSTOMER")
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/bookings", ann, reserveBody).Code)

	type list struct {
		Bookings []model.Booking `json:"bookings"`
		Count    int             `json:"count"`
	}
	rec := a.do(t, http.MethodGet, "/v1/my-bookings?status=pending,confirmed&order=asc", ann, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[list](t, rec).Count)

	rec = a.do(t, http.MethodGet, "/v1/my-bookings?status=cancelled", ann, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(string(mustField(t, rec.Body.Bytes(), "bookings"))))

	rec = a.do(t, http.MethodGet, "/v1/my-bookings?status=bogus", ann, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/my-bookings?from=2024-12-31&to=2024-12-01", ann, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/my-bookings?order=sideways", ann, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/operator/restaurants/bistro/bookings", token(t, "op", "OPERATOR", "*"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[list](t, rec).Count)
	rec = a.do(t, http.MethodGet, "/v1/operator/restaurants/bistro/bookings", token(t, "op", "OPERATOR"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func mustField(t *testing.T, raw []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[key]
}

func TestPublicEndpoints(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodGet, "/v1/restaurants/bistro", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bistro", decode[model.Restaurant](t, rec).Name)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/restaurants/nowhere", "", "").Code)

	rec = a.do(t, http.MethodGet, "/v1/restaurants/bistro/availability?date=2024-12-01&party_size=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var av struct {
		Slots []model.AvailabilitySlot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &av))
	assert.Len(t, av.Slots, 10)

	rec = a.do(t, http.MethodGet, "/v1/restaurants/bistro/availability?date=2024-12-01&party_size=9", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(mustField(t, rec.Body.Bytes(), "slots")))

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/restaurants/bistro/availability?party_size=2", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/restaurants/bistro/availability?date=2024-12-01&party_size=x", "", "").Code)
}

func TestHealthAndReadiness(t *testing.T) {
	a := newAPI(t, handler.ReadyCheck{Name: "mysql", Check: func(context.Context) error { return errors.New("down") }})
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/healthz", "", "").Code)
	rec := a.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "mysql")

	ok := newAPI(t, handler.ReadyCheck{Name: "mysql", Check: func(context.Context) error { return nil }})
	assert.Equal(t, http.StatusOK, ok.do(t, http.MethodGet, "/readyz", "", "").Code)
}

func TestStreamDeliversSnapshotsAndChanges(t *testing.T) {
	a := newAPI(t)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/my-bookings/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "ann", "CUSTOMER"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	lines := bufio.NewScanner(resp.Body)
	next := func() []model.Booking {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				var bs []model.Booking
				require.NoError(t, json.Unmarshal([]byte(data), &bs))
				return bs
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return nil
	}

	assert.Empty(t, next())

	_, err = a.engine.Reserve(ctx, service.ReserveRequest{
		OwnerID: "ann", RestaurantID: "bistro", Date: "2024-12-01", Time: "19:00", PartySize: 2,
		TableType: "standard", Contact: model.ContactInfo{Name: "Ann Lee", Phone: "+33 1 23 45 67 89"},
	})
	require.NoError(t, err)
	got := next()
	require.Len(t, got, 1)
	assert.Equal(t, "19:00", got[0].Time)
}
