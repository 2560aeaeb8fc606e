package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func patch(handler http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/api/cart/item", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdemRejectsReplay(t *testing.T) {
	idem, mr := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, http.StatusOK, patch(h, "abc").Code)
	replay := patch(h, "abc")
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Contains(t, replay.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, calls)

	require.Equal(t, http.StatusOK, patch(h, "def").Code)
	require.Equal(t, 2, calls)

	mr.FastForward(2 * time.Minute)
	require.Equal(t, http.StatusOK, patch(h, "abc").Code)
	require.Equal(t, 3, calls)
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newIdem(t)
	status := http.StatusInternalServerError
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	require.Equal(t, http.StatusInternalServerError, patch(h, "retry-me").Code)
	status = http.StatusOK
	require.Equal(t, http.StatusOK, patch(h, "retry-me").Code)
}

func TestIdemPassThrough(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })

	h := Idem{}.Middleware(next)
	patch(h, "abc")
	patch(h, "abc")
	require.Equal(t, 2, calls)

	idem, _ := newIdem(t)
	h = idem.Middleware(next)
	patch(h, "")
	patch(h, "")
	require.Equal(t, 4, calls)
}

func TestIdemStoreError(t *testing.T) {
	idem, mr := newIdem(t)
	mr.Close()
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	require.Equal(t, http.StatusInternalServerError, patch(h, "abc").Code)
}
