package notification

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/internal/money"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/smallbiznis/invoicepay/internal/providers/pdf"
)

const dateLayout = "02 Jan 2006"

type invoiceView struct {
	ClientName    string
	BusinessName  string
	InvoiceNumber string
	Description   string
	Total         string
	DueDate       string
	PayURL        string
	Overdue       bool
}

func (s *Service) view(invoice *invoicedomain.Invoice) invoiceView {
	return invoiceView{
		ClientName:    invoice.ClientName,
		BusinessName:  s.businessName,
		InvoiceNumber: invoice.InvoiceNumber,
		Description:   invoice.Description,
		Total:         money.Format(invoice.Total, invoice.Currency),
		DueDate:       invoice.DueDate.Format(dateLayout),
		PayURL:        s.baseURL + "/invoices/" + invoice.InvoiceNumber,
		Overdue:       invoice.Status == invoicedomain.StatusOverdue,
	}
}

func (s *Service) invoiceData(invoice *invoicedomain.Invoice) pdf.InvoiceData {
	format := func(amount decimal.Decimal) string { return money.Format(amount, invoice.Currency) }

	items := lo.Map(invoice.LineItems, func(item invoicedomain.LineItem, _ int) pdf.InvoiceItem {
		return pdf.InvoiceItem{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   format(item.UnitPrice),
			Amount:      format(item.Amount),
		}
	})
	if len(items) == 0 {
		items = []pdf.InvoiceItem{{
			Description: lo.Ternary(invoice.Description != "", invoice.Description, invoice.InvoiceNumber),
			Quantity:    invoice.Quantity.String(),
			UnitPrice:   format(invoice.UnitPrice),
			Amount:      format(invoice.Subtotal),
		}}
	}

	data := pdf.InvoiceData{
		BusinessName:  s.businessName,
		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.IssueDate.Format(dateLayout),
		DueDate:       invoice.DueDate.Format(dateLayout),
		PaymentTerms:  termsLabel(invoice.PaymentTerms),
		BillToName:    invoice.ClientName,
		BillToAddress: invoice.ClientAddress,
		BillToEmail:   invoice.ClientEmail,
		BillToPhone:   invoice.ClientPhone,
		Items:         items,
		Subtotal:      format(invoice.Subtotal),
		Total:         format(invoice.Total),
		Notes:         invoice.Notes,
	}
	if !invoice.TaxAmount.IsZero() {
		data.TaxLabel = "Tax (" + invoice.TaxRate.String() + "%)"
		data.Tax = format(invoice.TaxAmount)
	}
	if !invoice.Discount.IsZero() {
		data.Discount = format(invoice.Discount)
	}
	return data
}

func (s *Service) receiptData(invoice *invoicedomain.Invoice, txn *paymentdomain.PaymentTransaction) pdf.ReceiptData {
	paid := time.Now().UTC()
	switch {
	case invoice.PaidDate != nil:
		paid = *invoice.PaidDate
	case txn.PaymentDate != nil:
		paid = *txn.PaymentDate
	}
	return pdf.ReceiptData{
		InvoiceData:   s.invoiceData(invoice),
		DatePaid:      paid.Format(dateLayout),
		AmountPaid:    money.Format(txn.Amount, lo.Ternary(txn.Currency != "", txn.Currency, invoice.Currency)),
		Reference:     txn.TransactionReference,
		PaymentMethod: methodLabel(txn.PaymentMethod),
		PayerName:     txn.PayerName,
	}
}

func termsLabel(terms invoicedomain.PaymentTerms) string {
	switch {
	case terms == invoicedomain.TermsImmediate:
		return "Due on receipt"
	case terms == "":
		return ""
	}
	return strings.Replace(strings.ToUpper(string(terms[:1]))+string(terms[1:]), "_", " ", 1)
}

func methodLabel(method paymentdomain.PaymentMethod) string {
	switch method {
	case paymentdomain.PaymentMethodGateway:
		return "Card (Paystack)"
	case paymentdomain.PaymentMethodBankTransfer:
		return "Bank transfer"
	case paymentdomain.PaymentMethodCash:
		return "Cash"
	default:
		return "Other"
	}
}
