// Package notification delivers invoices, receipts and reminders to clients.
// Reconciliation never calls it directly; HTTP handlers and scheduled jobs
// trigger deliveries after the state change has been committed.
package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"unicode"

	"github.com/smallbiznis/invoicepay/internal/config"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/smallbiznis/invoicepay/internal/providers/email"
	"github.com/smallbiznis/invoicepay/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var (
	ErrNoRecipient        = errors.New("no_recipient")
	ErrUnsupportedChannel = errors.New("unsupported_channel")
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

const (
	kindInvoice         = "invoice"
	kindPaymentReceived = "payment_received"
	kindPaymentReminder = "payment_reminder"
)

// Delivery describes a sent notification. ShareURL is set for WhatsApp, which
// is delivered by the user opening the link.
type Delivery struct {
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"`
	ShareURL  string  `json:"share_url,omitempty"`
}

type Notifier interface {
	SendInvoice(ctx context.Context, invoice *invoicedomain.Invoice, channel Channel) (*Delivery, error)
	PaymentReceived(ctx context.Context, invoice *invoicedomain.Invoice, txn *paymentdomain.PaymentTransaction) error
	PaymentReminder(ctx context.Context, invoice *invoicedomain.Invoice) error
}

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Email      email.Provider
	PDF        pdf.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	businessName string
	baseURL      string
	log          *zap.Logger
	email        email.Provider
	pdf          pdf.Provider
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) Notifier {
	return &Service{
		businessName: p.Cfg.BusinessName,
		baseURL:      strings.TrimRight(p.Cfg.PublicBaseURL, "/"),
		log:          p.Log.Named("notification"),
		email:        p.Email,
		pdf:          p.PDF,
		obsMetrics:   p.ObsMetrics,
	}
}

// SendInvoice delivers the invoice over channel. Email carries the invoice
// PDF; WhatsApp returns a wa.me share link.
func (s *Service) SendInvoice(ctx context.Context, invoice *invoicedomain.Invoice, channel Channel) (*Delivery, error) {
	var (
		delivery *Delivery
		err      error
	)
	switch channel {
	case ChannelEmail:
		delivery, err = s.sendInvoiceEmail(ctx, invoice)
	case ChannelWhatsApp:
		delivery, err = s.whatsAppInvoice(invoice)
	default:
		err = ErrUnsupportedChannel
	}
	s.record(ctx, kindInvoice, channel, err)
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *Service) sendInvoiceEmail(ctx context.Context, invoice *invoicedomain.Invoice) (*Delivery, error) {
	recipient := strings.TrimSpace(invoice.ClientEmail)
	if recipient == "" {
		return nil, ErrNoRecipient
	}

	body, err := render("invoice.html", s.view(invoice))
	if err != nil {
		return nil, err
	}
	msg := email.Message{
		To:      []string{recipient},
		Subject: fmt.Sprintf("Invoice %s from %s", invoice.InvoiceNumber, s.businessName),
		HTML:    body,
	}

	doc, err := s.pdf.GenerateInvoice(ctx, s.invoiceData(invoice))
	if err != nil {
		s.log.Warn("invoice pdf failed, sending without attachment",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err),
		)
	} else if len(doc) > 0 {
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    pdf.FileName("invoice", invoice.InvoiceNumber),
			ContentType: "application/pdf",
			Data:        doc,
		})
	}

	if err := s.email.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send invoice email: %w", err)
	}
	s.log.Info("invoice emailed", zap.String("invoice_number", invoice.InvoiceNumber))
	return &Delivery{Channel: ChannelEmail, Recipient: recipient}, nil
}

func (s *Service) whatsAppInvoice(invoice *invoicedomain.Invoice) (*Delivery, error) {
	phone := whatsAppNumber(invoice.ClientPhone)
	if phone == "" {
		return nil, ErrNoRecipient
	}

	view := s.view(invoice)
	text := fmt.Sprintf("Hi %s,\n\nYou have received a new invoice from %s:\n\nInvoice: %s\nAmount: %s\nDue date: %s\n\nPay now: %s\n\nThank you for your business!",
		view.ClientName, view.BusinessName, view.InvoiceNumber, view.Total, view.DueDate, view.PayURL)

	return &Delivery{
		Channel:   ChannelWhatsApp,
		Recipient: phone,
		ShareURL:  "https://wa.me/" + phone + "?text=" + url.QueryEscape(text),
	}, nil
}

// PaymentReceived emails a receipt for a settled transaction.
func (s *Service) PaymentReceived(ctx context.Context, invoice *invoicedomain.Invoice, txn *paymentdomain.PaymentTransaction) error {
	err := s.paymentReceived(ctx, invoice, txn)
	s.record(ctx, kindPaymentReceived, ChannelEmail, err)
	return err
}

func (s *Service) paymentReceived(ctx context.Context, invoice *invoicedomain.Invoice, txn *paymentdomain.PaymentTransaction) error {
	recipient := strings.TrimSpace(invoice.ClientEmail)
	if recipient == "" {
		recipient = strings.TrimSpace(txn.PayerEmail)
	}
	if recipient == "" {
		return ErrNoRecipient
	}

	receipt := s.receiptData(invoice, txn)
	body, err := render("payment_received.html", map[string]any{
		"ClientName":    invoice.ClientName,
		"BusinessName":  s.businessName,
		"InvoiceNumber": invoice.InvoiceNumber,
		"AmountPaid":    receipt.AmountPaid,
		"PaidDate":      receipt.DatePaid,
		"Reference":     txn.TransactionReference,
	})
	if err != nil {
		return err
	}
	msg := email.Message{
		To:      []string{recipient},
		Subject: fmt.Sprintf("Payment received for invoice %s", invoice.InvoiceNumber),
		HTML:    body,
	}

	doc, err := s.pdf.GenerateReceipt(ctx, receipt)
	if err != nil {
		s.log.Warn("receipt pdf failed, sending without attachment",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err),
		)
	} else if len(doc) > 0 {
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    pdf.FileName("receipt", invoice.InvoiceNumber),
			ContentType: "application/pdf",
			Data:        doc,
		})
	}

	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("send receipt email: %w", err)
	}
	s.log.Info("payment receipt emailed",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("reference", txn.TransactionReference),
	)
	return nil
}

// PaymentReminder emails a reminder for an open invoice.
func (s *Service) PaymentReminder(ctx context.Context, invoice *invoicedomain.Invoice) error {
	err := s.paymentReminder(ctx, invoice)
	s.record(ctx, kindPaymentReminder, ChannelEmail, err)
	return err
}

func (s *Service) paymentReminder(ctx context.Context, invoice *invoicedomain.Invoice) error {
	recipient := strings.TrimSpace(invoice.ClientEmail)
	if recipient == "" {
		return ErrNoRecipient
	}
	if !invoice.Status.Payable() {
		return paymentdomain.ErrInvoiceNotPayable
	}

	body, err := render("payment_reminder.html", s.view(invoice))
	if err != nil {
		return err
	}
	err = s.email.Send(ctx, email.Message{
		To:      []string{recipient},
		Subject: fmt.Sprintf("Payment Reminder: Invoice %s", invoice.InvoiceNumber),
		HTML:    body,
	})
	if err != nil {
		return fmt.Errorf("send reminder email: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, kind string, channel Channel, err error) {
	status := "sent"
	switch {
	case errors.Is(err, ErrNoRecipient):
		status = "skipped"
	case err != nil:
		status = "failed"
	}
	s.obsMetrics.RecordNotification(ctx, kind, string(channel), status)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// whatsAppNumber keeps only the digits wa.me accepts.
func whatsAppNumber(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}
