package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"virtufit-backend/internal/models"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	provider string
	cache    Pinger
}

func NewHealthHandler(provider string, cache Pinger) *HealthHandler {
	return &HealthHandler{provider: provider, cache: cache}
}

// Health godoc
// @Summary     Health check
// @Description Returns the health status of the API and its result cache
// @Tags        health
// @Accept      json
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Failure     503 {object} models.HealthResponse
// @Router      /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	response := models.HealthResponse{
		Status:   "ok",
		Provider: h.provider,
	}
	if h.cache == nil {
		c.JSON(http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Ping(ctx); err != nil {
		response.Status = "degraded"
		response.Cache = "unavailable"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	response.Cache = "ok"
	c.JSON(http.StatusOK, response)
}
