package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
)

// RecordManualPayment settles an invoice paid outside the gateway.
func (s *Server) RecordManualPayment(c *gin.Context) {
	var req paymentdomain.ManualPayment
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	settlement, err := s.paymentSvc.RecordManualPayment(ctx, c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.notifyPaymentReceived(ctx, settlement)

	c.JSON(http.StatusCreated, gin.H{"data": settlement})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	items, err := s.paymentSvc.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
