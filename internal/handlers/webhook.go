package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"virtufit-backend/internal/models"
	"virtufit-backend/internal/services"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	token   string
	service *services.GenerationService
	logger  *zap.Logger
}

func NewWebhookHandler(token string, service *services.GenerationService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		token:   token,
		service: service,
		logger:  logger.With(zap.String("component", "webhook")),
	}
}

// HandleWebhook godoc
// @Summary     Provider task callback
// @Description Receives task status callbacks from the generation provider. Terminal results are stored so later
// @Description reads need no provider round-trip. Authenticated with the shared WEBHOOK_TOKEN, sent as the
// @Description Authorization header (optionally "Bearer "-prefixed) or the token query parameter.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Authorization header string false "Webhook token"
// @Param       token         query  string false "Webhook token"
// @Success     200 {object} models.WebhookResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /webhooks/provider [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	if h.token == "" {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "webhooks are not configured"})
		return
	}

	// Extract token (could be "Bearer <token>", just "<token>" or ?token=)
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization token"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to read request body",
			Message: err.Error(),
		})
		return
	}

	snap, err := h.service.RecordCallback(c.Request.Context(), body)
	if err != nil {
		h.logger.Warn("callback rejected", zap.Error(err))
		writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, models.WebhookResponse{
		Status:     "ok",
		TaskID:     snap.TaskID,
		TaskStatus: snap.PublicStatus(),
	})
}
