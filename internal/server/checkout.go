package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	obslogger "github.com/smallbiznis/invoicepay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"go.uber.org/zap"
)

// CreateCheckout initializes a hosted gateway checkout for an invoice. The
// pending transaction is stored before the checkout URL is returned.
func (s *Server) CreateCheckout(c *gin.Context) {
	ctx := c.Request.Context()
	checkout, err := s.paymentSvc.InitializeCheckout(ctx, c.Param("id"), s.callbackURL())
	if err != nil {
		status, message := checkoutError(err)
		if status >= http.StatusInternalServerError {
			obslogger.WithContext(ctx, s.log).Error("checkout initialization failed",
				zap.String("invoice_id", c.Param("id")),
				zap.Error(err),
			)
		}
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"checkout_url": checkout.CheckoutURL,
		"reference":    checkout.Reference,
		"invoice_id":   checkout.InvoiceNumber,
		"amount":       json.Number(checkout.Amount.StringFixed(2)),
		"currency":     checkout.Currency,
	})
}

func (s *Server) callbackURL() string {
	return s.cfg.PublicBaseURL + "/payments/callback"
}

func checkoutError(err error) (int, string) {
	var gwErr *paymentdomain.GatewayError
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceNotFound), errors.Is(err, invoicedomain.ErrInvalidInvoiceID):
		return http.StatusNotFound, "Invoice not found"
	case errors.Is(err, paymentdomain.ErrInvoiceNotPayable):
		return http.StatusBadRequest, "Invoice cannot be paid"
	case errors.Is(err, paymentdomain.ErrInvalidAmount):
		return http.StatusBadRequest, "Invoice total must be greater than zero"
	case errors.Is(err, paymentdomain.ErrGatewayNotConfigured):
		return http.StatusInternalServerError, "Payment system is not configured"
	case errors.As(err, &gwErr):
		return http.StatusInternalServerError, gwErr.ProviderMessage()
	default:
		return http.StatusInternalServerError, "Payment initialization failed"
	}
}

// CheckoutRateLimit throttles checkout creation per client IP when a limiter
// is configured.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			// Redis being down must not block payments.
			obslogger.WithContext(ctx, s.log).Warn("checkout rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			retry := int(res.RetryAfter.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Too many requests"})
			return
		}
		c.Next()
	}
}
