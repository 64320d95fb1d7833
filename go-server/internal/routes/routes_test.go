package route

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/database"
	"github.com/fonsecaaso/shortlink/go-server/internal/middleware"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/token"
)

func newTestRouter(t *testing.T, limit int) (*gin.Engine, repository.Store) {
	t.Helper()
	return newTestRouterWithProxies(t, limit, nil)
}

func newTestRouterWithProxies(t *testing.T, limit int, proxies []string) (*gin.Engine, repository.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	db, err := database.NewSQLiteClient(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(ctx, db))
	store := repository.NewSQLiteStore(db, nil, time.Minute)
	t.Cleanup(store.Close)

	limiter := middleware.NewRateLimiter(limit, time.Minute)
	t.Cleanup(limiter.Stop)

	cfg := &config.Config{Location: time.UTC, CORSOrigins: []string{"*"}, TrustedProxies: proxies}
	return SetupRouter(Dependencies{
		Config:      cfg,
		Store:       store,
		Tokens:      token.NewManager("test-secret", time.Hour),
		RateLimiter: limiter,
	}), store
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, 5)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, 5)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shortlink_resolutions_total")
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestStaticRoutesWinOverShortCodes(t *testing.T) {
	r, store := newTestRouter(t, 5)
	require.NoError(t, store.CreateLink(context.Background(), &model.Link{ShortCode: "abc", OriginalURL: "https://example.com"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/links", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"links"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc", nil))
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestPasswordAttemptsAreRateLimited(t *testing.T) {
	r, store := newTestRouter(t, 2)
	password := "secret"
	require.NoError(t, store.CreateLink(context.Background(), &model.Link{
		ShortCode: "locked", OriginalURL: "https://example.com", Password: &password,
	}))

	attempt := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/locked", strings.NewReader(`{"password":"guess"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, attempt().Code)
	assert.Equal(t, http.StatusUnauthorized, attempt().Code)

	w := attempt()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	// GET is never limited
	get := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/locked", nil)
	getReq.RemoteAddr = "203.0.113.7:4000"
	r.ServeHTTP(get, getReq)
	assert.Equal(t, http.StatusUnauthorized, get.Code)
}

func createLockedLink(t *testing.T, store repository.Store) {
	t.Helper()
	password := "secret"
	require.NoError(t, store.CreateLink(context.Background(), &model.Link{
		ShortCode: "locked", OriginalURL: "https://example.com", Password: &password,
	}))
}

func guessFrom(r *gin.Engine, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/locked", strings.NewReader(`{"password":"guess"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.Header.Set("X-Real-IP", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_IgnoresForwardedHeadersFromUntrustedPeers(t *testing.T) {
	r, store := newTestRouter(t, 2)
	createLockedLink(t, store)

	limited := 0
	for i := 0; i < 50; i++ {
		if guessFrom(r, "198.51.100.9:5000", fmt.Sprintf("203.0.113.%d", i)) == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 48, limited)
}

func TestRateLimit_HonoursForwardedHeadersFromTrustedProxy(t *testing.T) {
	r, store := newTestRouterWithProxies(t, 2, []string{"10.0.0.0/8"})
	createLockedLink(t, store)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, guessFrom(r, "10.1.2.3:4000", "203.0.113.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, guessFrom(r, "10.1.2.3:4000", "203.0.113.1"))

	// a different client behind the same proxy has its own budget
	assert.Equal(t, http.StatusUnauthorized, guessFrom(r, "10.1.2.3:4000", "203.0.113.2"))
}
