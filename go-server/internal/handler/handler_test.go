package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/database"
	"github.com/fonsecaaso/shortlink/go-server/internal/middleware"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
	"github.com/fonsecaaso/shortlink/go-server/internal/token"
)

type testEnv struct {
	router *gin.Engine
	store  repository.Store
	tokens *token.Manager
}

func setupTest(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	setupTest(t)
	ctx := context.Background()

	db, err := database.NewSQLiteClient(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(ctx, db))
	store := repository.NewSQLiteStore(db, nil, time.Minute)
	t.Cleanup(store.Close)

	tokens := token.NewManager("test-secret", time.Hour)

	redirect := NewRedirectHandler(service.NewResolveService(store))
	analytics := NewAnalyticsHandler(service.NewAnalyticsService(store, time.UTC))
	links := NewLinkHandler(service.NewLinkService(store, time.UTC))
	auth := NewAuthHandler(service.NewAuthService(store, tokens))

	r := gin.New()
	r.POST("/api/auth/register", auth.Register)
	r.POST("/api/auth/login", auth.Login)
	r.GET("/api/auth/me", middleware.OptionalAuth(tokens), auth.Me)
	r.GET("/api/links", links.List)
	r.GET("/api/links/codes", links.Codes)
	r.GET("/api/links/:code", links.Get)
	r.POST("/api/links", middleware.AuthMiddleware(tokens), links.Create)
	r.POST("/api/links/batch", middleware.AuthMiddleware(tokens), links.BatchCreate)
	r.DELETE("/api/links/:code", middleware.ForbidUnauthenticated(tokens, "Forbidden: please login to delete"), links.Delete)
	r.GET("/api/analytics/:code", analytics.Report)
	r.GET("/:code", redirect.Redirect)
	r.POST("/:code", redirect.Unlock)

	return &testEnv{router: r, store: store, tokens: tokens}
}

func (e *testEnv) bearer(t *testing.T) string {
	t.Helper()
	tok, err := e.tokens.GenerateToken(uuid.NewString(), "tester")
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) link(t *testing.T, link *model.Link) *model.Link {
	t.Helper()
	require.NoError(t, e.store.CreateLink(context.Background(), link))
	return link
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func strPtr(s string) *string { return &s }
