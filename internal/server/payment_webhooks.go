package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/invoicepay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/smallbiznis/invoicepay/internal/payment/webhook"
	"go.uber.org/zap"
)

// maxWebhookBody caps what a webhook delivery may send before it is rejected.
const maxWebhookBody = 1 << 20

// HandlePaymentWebhook answers the gateway with the bodies it expects; it does
// not use the JSON API error envelope.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := obslogger.WithContext(ctx, s.log)

	signature := strings.TrimSpace(c.GetHeader(webhook.SignatureHeader))
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No signature"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(payload) > maxWebhookBody {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	result, err := s.webhooks.Ingest(ctx, payload, signature)
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrMissingSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No signature"})
		return
	case errors.Is(err, webhook.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	case errors.Is(err, webhook.ErrMalformedPayload), errors.Is(err, webhook.ErrMissingReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	case errors.Is(err, paymentdomain.ErrTransactionNotFound):
		log.Error("webhook references unknown transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Transaction not found"})
		return
	default:
		log.Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	switch result.Event.(type) {
	case paymentdomain.ChargeSuccess:
		s.notifyPaymentReceived(ctx, result.Settlement)
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	case paymentdomain.ChargeFailed:
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "event_not_handled"})
	}
}

// notifyPaymentReceived sends the receipt after the settlement is committed.
// Delivery failures are logged and never change the response.
func (s *Server) notifyPaymentReceived(ctx context.Context, settlement *paymentdomain.Settlement) {
	if !settlement.Notify() || s.notifier == nil {
		return
	}
	err := s.notifier.PaymentReceived(ctx, settlement.Invoice, settlement.Transaction)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("payment receipt not sent",
			zap.String("invoice_number", settlement.Invoice.InvoiceNumber),
			zap.Error(err),
		)
	}
}
