package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/internal/notification"
	"github.com/smallbiznis/invoicepay/pkg/db/pagination"
)

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.InvoiceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req invoicedomain.InvoiceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := parseOptionalSnowflakeID(c.Query("user_id"))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
		return
	}
	status, err := parseOptionalStatus(c.Query("status"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Pagination: page,
		UserID:     userID,
		Status:     status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetInvoiceStats(c *gin.Context) {
	userID, err := parseOptionalSnowflakeID(c.Query("user_id"))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
		return
	}

	stats, err := s.invoiceSvc.Stats(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

type sendInvoiceRequest struct {
	Channel notification.Channel `json:"channel"`
}

// SendInvoice delivers an invoice over the requested channel and then marks
// a draft as sent. WhatsApp delivery returns a share link for the user to open.
func (s *Server) SendInvoice(c *gin.Context) {
	req := sendInvoiceRequest{Channel: notification.ChannelEmail}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	switch req.Channel {
	case notification.ChannelEmail, notification.ChannelWhatsApp:
	default:
		AbortWithError(c, newValidationError("channel", "invalid_channel", "channel must be email or whatsapp"))
		return
	}

	ctx := c.Request.Context()
	item, err := s.invoiceSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	delivery, err := s.notifier.SendInvoice(ctx, item, req.Channel)
	if err != nil {
		if errors.Is(err, notification.ErrNoRecipient) {
			AbortWithError(c, newValidationError("recipient", "missing_recipient", "client has no "+recipientField(req.Channel)))
			return
		}
		AbortWithError(c, err)
		return
	}

	// A draft only becomes sent once delivery went through.
	item, err = s.invoiceSvc.MarkSent(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item, "delivery": delivery})
}

func recipientField(channel notification.Channel) string {
	if channel == notification.ChannelWhatsApp {
		return "phone number"
	}
	return "email address"
}

func (s *Server) SendPaymentReminder(c *gin.Context) {
	ctx := c.Request.Context()
	item, err := s.invoiceSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.notifier.PaymentReminder(ctx, item); err != nil {
		if errors.Is(err, notification.ErrNoRecipient) {
			AbortWithError(c, newValidationError("recipient", "missing_recipient", "client has no email address"))
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

type setStatusRequest struct {
	Status invoicedomain.Status `json:"status"`
}

func (s *Server) SetInvoiceStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.SetStatus(c.Request.Context(), c.Param("id"), invoicedomain.Status(strings.TrimSpace(string(req.Status))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	item, err := s.invoiceSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DuplicateInvoice(c *gin.Context) {
	item, err := s.invoiceSvc.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}
