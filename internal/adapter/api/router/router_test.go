package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zarigaas/internal/adapter/api"
	"zarigaas/internal/adapter/api/handler"
	"zarigaas/internal/adapter/api/middleware"
	store "zarigaas/internal/adapter/repository"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/infrastructure/firebase"
	"zarigaas/internal/infrastructure/ratelimit"
	ws "zarigaas/internal/infrastructure/websocket"
	"zarigaas/internal/realtime"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type app struct {
	e       *echo.Echo
	mem     *store.MemoryStore
	service *realtime.Service
}

func newApp(t *testing.T) *app {
	t.Helper()
	mem := store.NewMemoryStore()
	mem.SetClock(func() time.Time { return t0 })
	mem.Put(repository.CollectionUsers, "owner-1", map[string]interface{}{"email": "owner@zarigaas.in", "role": "owner", "createdAt": t0})
	mem.Put(repository.CollectionUsers, "buyer-1", map[string]interface{}{"email": "buyer@example.com", "role": "user", "createdAt": t0})
	mem.Put(repository.CollectionUsers, "banned", map[string]interface{}{"email": "x@example.com", "role": "user", "disabled": true})
	mem.Put(repository.CollectionProducts, "P1", map[string]interface{}{
		"name": "Kanjivaram Silk", "priceType": "fixed", "price": 500, "stock": 2, "pitchCount": 0, "createdAt": t0,
	})

	service := realtime.NewService(realtime.NewManager(mem, nil), realtime.WithClock(func() time.Time { return t0 }))
	require.NoError(t, service.Start(context.Background()))
	t.Cleanup(service.Close)
	require.Eventually(t, func() bool {
		return service.Products.Loaded() && service.Pitches.Loaded() && service.Messages.Loaded() && service.Users.Loaded()
	}, 2*time.Second, 5*time.Millisecond)

	limiter := ratelimit.NewRateLimiter(ratelimit.DefaultPolicies(10, 10))
	wc := usecase.NewWriteCoordinator(mem, limiter, usecase.WithCoordinatorClock(func() time.Time { return t0 }))
	auth := middleware.NewAuthMiddleware(firebase.NewDevVerifier(nil), wc)
	wsManager := ws.NewManager()

	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = response.ErrorHandler
	Setup(e, Handlers{
		Product:   handler.NewProductHandler(service, wc),
		Pitch:     handler.NewPitchHandler(service, wc),
		Message:   handler.NewMessageHandler(service, wc),
		Admin:     handler.NewAdminHandler(service, wc),
		Session:   handler.NewSessionHandler(wc),
		Health:    handler.NewHealthHandler(service),
		WebSocket: handler.NewWebSocketHandler(wsManager, ws.NewHandler(wsManager, wc), nil),
	}, auth, limiter)
	return &app{e: e, mem: mem, service: service}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func (a *app) do(t *testing.T, method, path, uid, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if uid != "" {
		req.Header.Set("Authorization", "Bearer dev:"+uid)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

type page struct {
	Items []map[string]interface{} `json:"items"`
	Total int                      `json:"total"`
	Meta  struct {
		Loading       bool   `json:"loading"`
		NetworkStatus string `json:"networkStatus"`
	} `json:"meta"`
}

func TestListProductsIsPublic(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodGet, "/v1/products?search=kanji&inStock=true", "", "")
	require.Equal(t, http.StatusOK, code)

	var p page
	decode(t, env.Data, &p)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "P1", p.Items[0]["id"])
	assert.False(t, p.Meta.Loading)
	assert.Equal(t, "online", p.Meta.NetworkStatus)

	code, env = a.do(t, http.MethodGet, "/v1/products/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, errors.CodeNotFound, env.Error.Code)
}

func TestRecordPitchRequiresSignIn(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodPost, "/v1/products/P1/pitches", "", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, errors.CodeUnauthorized, env.Error.Code)
}

func TestRecordPitchIncrementsCounter(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodPost, "/v1/products/P1/pitches", "buyer-1",
		`{"name":"Meera","message":"Is the red one available?","proposedPrice":450,"clientToken":"tok-1"}`)
	require.Equal(t, http.StatusCreated, code, string(env.Data))

	var pitch map[string]interface{}
	decode(t, env.Data, &pitch)
	assert.Equal(t, "P1", pitch["productId"])
	assert.Equal(t, "pending", pitch["status"])

	// The same client token is a retry of the same enquiry.
	code, _ = a.do(t, http.MethodPost, "/v1/products/P1/pitches", "buyer-1",
		`{"name":"Meera","message":"Is the red one available?","proposedPrice":450,"clientToken":"tok-1"}`)
	require.Equal(t, http.StatusCreated, code)

	require.Eventually(t, func() bool {
		p, ok := a.service.Product("P1")
		return ok && p.PitchCount == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, a.service.Pitches.Len())
}

func TestAdminRoutesNeedAnOperator(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodGet, "/v1/admin/dashboard", "buyer-1", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, errors.CodeForbidden, env.Error.Code)

	code, env = a.do(t, http.MethodGet, "/v1/admin/dashboard", "owner-1", "")
	require.Equal(t, http.StatusOK, code)
	var dash struct {
		Stats struct {
			TotalProducts int `json:"totalProducts"`
		} `json:"stats"`
		NetworkStatus string `json:"networkStatus"`
	}
	decode(t, env.Data, &dash)
	assert.Equal(t, 1, dash.Stats.TotalProducts)
	assert.Equal(t, "online", dash.NetworkStatus)
}

func TestDisabledUserIsRejected(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodGet, "/v1/me", "banned", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, errors.CodeForbidden, env.Error.Code)
}

func TestCreateProductValidation(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodPost, "/v1/admin/products", "owner-1", `{"name":"Banarasi","priceType":"fixed"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)

	code, env = a.do(t, http.MethodPost, "/v1/admin/products", "owner-1", `{"name":"Banarasi","priceType":"request","stockLevel":1}`)
	require.Equal(t, http.StatusCreated, code)
	var product map[string]interface{}
	decode(t, env.Data, &product)
	assert.Equal(t, "Banarasi", product["name"])
}

func TestMessagingRoundTrip(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodPost, "/v1/messages", "buyer-1", `{"receiverId":"owner-1","text":"Price for P1?"}`)
	require.Equal(t, http.StatusCreated, code, string(env.Data))

	require.Eventually(t, func() bool { return a.service.Messages.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	code, env = a.do(t, http.MethodGet, "/v1/conversations", "owner-1", "")
	require.Equal(t, http.StatusOK, code)
	var convs page
	decode(t, env.Data, &convs)
	require.Len(t, convs.Items, 1)
	assert.EqualValues(t, 1, convs.Items[0]["unreadCount"])

	code, env = a.do(t, http.MethodPost, "/v1/conversations/buyer-1/read", "owner-1", "")
	require.Equal(t, http.StatusOK, code)
	var marked struct {
		Marked int `json:"marked"`
	}
	decode(t, env.Data, &marked)
	assert.Equal(t, 1, marked.Marked)

	code, env = a.do(t, http.MethodPost, "/v1/messages", "buyer-1", `{"receiverId":"buyer-1","text":"me"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)
}

func TestDeletionNeedsConfirmation(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodDelete, "/v1/admin/products/P1", "owner-1", "")
	require.Equal(t, http.StatusOK, code)
	var conf usecase.Confirmation
	decode(t, env.Data, &conf)
	require.NotEmpty(t, conf.Token)
	assert.NotNil(t, a.mem.Raw(repository.CollectionProducts, "P1"))

	// A token is bound to the operator who asked for it.
	code, _ = a.do(t, http.MethodPost, "/v1/deletions/confirm", "buyer-1", `{"token":"`+conf.Token+`"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(t, http.MethodPost, "/v1/deletions/confirm", "owner-1", `{"token":"`+conf.Token+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, a.mem.Raw(repository.CollectionProducts, "P1"))
}

func TestRoleChangeRejectsSelfModification(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodPut, "/v1/admin/users/owner-1/role", "owner-1", `{"role":"user"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)

	code, _ = a.do(t, http.MethodPut, "/v1/admin/users/buyer-1/role", "owner-1", `{"role":"admin"}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestStatusReportsSyncState(t *testing.T) {
	a := newApp(t)
	code, env := a.do(t, http.MethodGet, "/v1/status", "", "")
	require.Equal(t, http.StatusOK, code)
	var status struct {
		NetworkStatus string          `json:"networkStatus"`
		ActiveHandles int             `json:"activeHandles"`
		Loaded        map[string]bool `json:"loaded"`
	}
	decode(t, env.Data, &status)
	assert.Equal(t, "online", status.NetworkStatus)
	assert.Equal(t, 4, status.ActiveHandles)
	assert.True(t, status.Loaded["products"])
}
