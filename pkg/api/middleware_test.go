package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/appops/pkg/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	// Setup limiter: 1 req/sec, burst 2
	limiter := NewRateLimiter(1, 2)
	defer limiter.Stop()

	ts := httptest.NewServer(limiter.Middleware(okHandler()))
	defer ts.Close()

	client := ts.Client()

	// Bursts: 2 allowed immediately
	for i := 0; i < 2; i++ {
		resp, err := client.Get(ts.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "Within burst limit")
		assert.NoError(t, resp.Body.Close())
	}

	// With Limit 1 a token takes a second, so the 3rd request fails.
	resp, err := client.Get(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "Exceeded burst")
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.NoError(t, resp.Body.Close())

	time.Sleep(1100 * time.Millisecond)

	resp, err = client.Get(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "Refilled token")
	assert.NoError(t, resp.Body.Close())
}

func TestRateLimitMiddleware_KeyedByCaller(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	defer limiter.Stop()
	h := limiter.Middleware(okHandler())

	serve := func(uid int) int {
		req := httptest.NewRequest("GET", "/v1/catalog", nil)
		req = req.WithContext(auth.WithCaller(req.Context(), auth.App(uid, "")))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(10001))
	assert.Equal(t, http.StatusTooManyRequests, serve(10001))
	// Same remote address, different caller: separate bucket.
	assert.Equal(t, http.StatusOK, serve(10002))
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "client-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", w.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"https://console.example.com"})(okHandler())

	req := httptest.NewRequest("OPTIONS", "/v1/ops/check", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/v1/catalog", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthenticate(t *testing.T) {
	secret := []byte("test-secret")
	validator := auth.NewTokenValidator(secret)

	var got auth.Caller
	h := Authenticate(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := auth.CallerFrom(r.Context())
		if err == nil {
			got = c
		}
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(path, header string) int {
		req := httptest.NewRequest("GET", path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("/health", ""), "public path")
	assert.Equal(t, http.StatusUnauthorized, serve("/v1/catalog", ""))
	assert.Equal(t, http.StatusUnauthorized, serve("/v1/catalog", "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, serve("/v1/catalog", "Bearer not-a-jwt"))

	wrong, err := auth.SignToken([]byte("other-secret"), auth.App(10001, "com.example.app"), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve("/v1/catalog", "Bearer "+wrong))

	expired, err := auth.SignToken(secret, auth.App(10001, "com.example.app"), time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve("/v1/catalog", "Bearer "+expired))

	tok, err := auth.SignToken(secret, auth.Shell(), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve("/v1/catalog", "Bearer "+tok))
	assert.Equal(t, auth.Shell(), got)
}

func TestAuthenticate_NilValidatorFailsClosed(t *testing.T) {
	h := Authenticate(nil)(okHandler())
	req := httptest.NewRequest("GET", "/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
