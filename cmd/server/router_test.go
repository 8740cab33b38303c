package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"virtufit-backend/internal/cache"
	"virtufit-backend/internal/config"
	"virtufit-backend/internal/metrics"
	"virtufit-backend/internal/relay"
	"virtufit-backend/internal/relay/relaytest"
	"virtufit-backend/internal/services"
)

func testRouter(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	collector := metrics.NewCollector("test", zap.NewNop())
	r := relay.New(relaytest.NewProvider("task-1"), relay.Options{Observer: collector})
	store := cache.NewMemoryStore(time.Minute)
	service := services.NewGenerationService(r, store, nil, collector, services.GenerationConfig{}, nil)

	return setupRouter(cfg, routerDeps{
		service:   service,
		collector: collector,
		cache:     store,
		logger:    zap.NewNop(),
	})
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	router := testRouter(t, nil)

	w := serve(router, "GET", "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","provider":"fake","cache":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_Metrics(t *testing.T) {
	router := testRouter(t, nil)
	serve(router, "GET", "/health")

	w := serve(router, "GET", "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `path="/health"`), "route pattern should be a label")
}

func TestRouter_SessionAuth(t *testing.T) {
	router := testRouter(t, func(cfg *config.Config) { cfg.AuthJWTSecret = "secret" })

	assert.Equal(t, http.StatusUnauthorized, serve(router, "GET", "/api/v1/tasks/task-1").Code)
	// Health and webhooks are outside the session group.
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, "POST", "/api/v1/webhooks/provider").Code)
}

func TestRouter_TaskStatus(t *testing.T) {
	router := testRouter(t, nil)

	w := serve(router, "GET", "/api/v1/tasks/task-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"processing"`)
}

func TestRouter_Swagger(t *testing.T) {
	router := testRouter(t, nil)

	w := serve(router, "GET", "/swagger/doc.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/generate-model")
}

func TestWriteTimeout(t *testing.T) {
	cfg := config.Default()
	assert.Greater(t, writeTimeout(cfg), cfg.RequestDeadline())
	assert.Greater(t, writeTimeout(cfg), cfg.EffectiveBudget())
}
