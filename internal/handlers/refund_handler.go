package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unipay/payment-core/internal/models"
	"github.com/unipay/payment-core/internal/service"
)

type RefundHandler struct {
	manager *service.RefundManager
}

func NewRefundHandler(manager *service.RefundManager) *RefundHandler {
	return &RefundHandler{manager: manager}
}

func (h *RefundHandler) Refund(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.TransactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id is required"})
		return
	}

	result, err := h.manager.Refund(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
