package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/minicart-api/internal/cart"
	"github.com/noah-isme/minicart-api/internal/common"
	"github.com/noah-isme/minicart-api/internal/health"
	"github.com/noah-isme/minicart-api/internal/obs"
	"github.com/noah-isme/minicart-api/internal/pricing"
	"github.com/noah-isme/minicart-api/internal/ratelimit"
)

type testServer struct {
	handler http.Handler
	engine  *cart.Engine
}

func newTestServer(t *testing.T, mutate func(*routerDeps)) testServer {
	t.Helper()
	seed, err := cart.DefaultSeed()
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	engine, err := cart.NewEngine(seed, cart.EngineOptions{
		Policy:  cart.Policy{Pricing: pricing.Policy{PaymentFee: 290}},
		Metrics: obs.NewCartMetrics("minicart", registry),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deps := routerDeps{
		Logger:          zerolog.Nop(),
		Cart:            engine,
		Health:          health.Handler{Probes: map[string]health.Probe{"cart": engine.Check}},
		Idem:            common.Idem{R: client, TTL: time.Minute},
		Limiter:         ratelimit.SlidingWindow{Client: client, Prefix: "test:"},
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		BodyLimit:       1024,
		SecurityHeaders: true,
		HTTPMetrics:     obs.NewHTTPMetrics("minicart", nil, registry),
		Gatherer:        registry,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return testServer{handler: newRouter(deps), engine: engine}
}

func (s testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func grandTotal(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["grandtotal"].(map[string]any)
}

func TestRouterCartFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	gt := grandTotal(t, rec)
	require.Equal(t, "19280", gt["grandtotal"])
	require.Equal(t, float64(4), gt["product_qty"])

	rec = srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":"5"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "qty must be a JSON number")

	rec = srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":5}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "34280", grandTotal(t, rec)["grandtotal"])

	rec = srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"36e402497","qty":0}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gt = grandTotal(t, rec)
	require.Equal(t, float64(5), gt["product_qty"])
	require.Equal(t, float64(1), gt["shop_qty"])

	rec = srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":0}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gt = grandTotal(t, rec)
	require.Equal(t, "0", gt["grandtotal"])
	require.Equal(t, float64(0), gt["shop_qty"])

	rec = srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":1}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterIdempotencyKey(t *testing.T) {
	srv := newTestServer(t, nil)
	headers := map[string]string{common.IdempotencyHeader: "req-1"}

	rec := srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":3}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":9}`, headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, float64(5), grandTotal(t, rec)["product_qty"])
}

func TestRouterBodyLimit(t *testing.T) {
	srv := newTestServer(t, func(d *routerDeps) { d.BodyLimit = 16 })
	rec := srv.do(t, http.MethodPatch, "/api/cart/item", `{"object_id":"387104ab","qty":3}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouterRateLimit(t *testing.T) {
	srv := newTestServer(t, func(d *routerDeps) {
		store, err := ratelimit.NewStore(nil, "router-test")
		require.NoError(t, err)
		d.Limiter = ratelimit.FixedWindow{Store: store}
		d.RateLimitMax = 2
	})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/cart", "", nil).Code)
	}
	rec := srv.do(t, http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health/live", "", nil).Code)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"cart":"ok"}`, rec.Body.String())

	srv.do(t, http.MethodGet, "/api/cart", "", nil)
	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "minicart_cart_grand_total")
	require.Contains(t, rec.Body.String(), "minicart_http_requests_total")
}

func TestRouterUnknownRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(t, http.MethodGet, "/api/orders", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = srv.do(t, http.MethodDelete, "/api/cart/item", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	srv := newTestServer(t, func(d *routerDeps) { d.AllowedOrigins = []string{"https://shop.test"} })
	rec := srv.do(t, http.MethodOptions, "/api/cart/item", "", map[string]string{
		"Origin":                        "https://shop.test",
		"Access-Control-Request-Method": http.MethodPatch,
	})
	require.Equal(t, "https://shop.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoadSeedDefault(t *testing.T) {
	c, err := loadSeed("  ")
	require.NoError(t, err)
	require.Len(t, c.Shops, 1)

	_, err = loadSeed("/nonexistent/cart.json")
	require.Error(t, err)
}
