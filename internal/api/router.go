package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unipay/payment-core/internal/handlers"
	"github.com/unipay/payment-core/internal/service"
	"github.com/unipay/payment-core/internal/telemetry"
)

func NewRouter(orchestrator *service.Orchestrator, processor *service.WebhookProcessor, refunds *service.RefundManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-core"})
	})

	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	refundHandler := handlers.NewRefundHandler(refunds)
	webhookHandler := handlers.NewWebhookHandler(processor)

	r.POST("/payments", paymentHandler.CreatePayment)
	r.GET("/payments/:number", paymentHandler.GetPaymentStatus)
	r.GET("/providers", paymentHandler.ListProviders)
	r.GET("/fees/quote", paymentHandler.QuoteFee)
	r.POST("/refunds", refundHandler.Refund)
	r.POST("/webhooks/:provider", webhookHandler.Handle)

	return r
}
