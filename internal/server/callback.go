package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/invoicepay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"go.uber.org/zap"
)

// PaymentCallback is where the gateway sends the payer's browser. It verifies
// the reference with the gateway, applies a success and redirects to the
// invoice page with the outcome.
func (s *Server) PaymentCallback(c *gin.Context) {
	ctx := c.Request.Context()
	log := obslogger.WithContext(ctx, s.log)

	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		c.Redirect(http.StatusFound, s.invoiceListURL("payment_error", "missing_reference"))
		return
	}

	settlement, err := s.paymentSvc.VerifyAndApply(ctx, reference)
	if err == nil {
		s.notifyPaymentReceived(ctx, settlement)
		c.Redirect(http.StatusFound, s.invoicePageURL(settlement.Invoice.InvoiceNumber, "success"))
		return
	}

	if errors.Is(err, paymentdomain.ErrPaymentNotSuccessful) {
		log.Info("payment callback reported unsuccessful payment", zap.Error(err))
	} else {
		log.Warn("payment callback verification failed", zap.Error(err))
	}

	invoice, lookupErr := s.paymentSvc.InvoiceForReference(ctx, reference)
	if lookupErr != nil || invoice == nil {
		c.Redirect(http.StatusFound, s.invoiceListURL("payment_error", "verification_failed"))
		return
	}
	c.Redirect(http.StatusFound, s.invoicePageURL(invoice.InvoiceNumber, "failed"))
}

func (s *Server) invoicePageURL(number, outcome string) string {
	return s.cfg.PublicBaseURL + "/invoices/" + url.PathEscape(number) + "?payment=" + outcome
}

func (s *Server) invoiceListURL(key, value string) string {
	return s.cfg.PublicBaseURL + "/invoices?" + url.Values{key: {value}}.Encode()
}
