package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/unipay/payment-core/internal/models"
	"github.com/unipay/payment-core/internal/service"
	"github.com/unipay/payment-core/internal/telemetry"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	processor *service.WebhookProcessor
}

func NewWebhookHandler(processor *service.WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Handle accepts POST /webhooks/:provider. 200 means accepted, including the
// idempotent no-op for duplicate deliveries; 401 means the signature did not
// verify; 5xx tells the provider to retry.
func (h *WebhookHandler) Handle(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	signature := c.GetHeader("X-Webhook-Signature")

	err = h.processor.HandleWebhook(c.Request.Context(), provider, payload, signature)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	case errors.Is(err, models.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
	case errors.Is(err, models.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
	default:
		telemetry.Logger.Error("Webhook processing failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}
