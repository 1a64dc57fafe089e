package pdf

import (
	"context"

	"github.com/gosimple/slug"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider renders invoice documents.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

// FileName returns an attachment name such as "receipt-inv-1a2b3c4d.pdf".
func FileName(kind, invoiceNumber string) string {
	return slug.Make(kind+" "+invoiceNumber) + ".pdf"
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	return nil, nil
}

func (p *NoOpProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}
