package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptData struct {
	InvoiceData
	DatePaid      string
	AmountPaid    string
	Reference     string
	PaymentMethod string
	PayerName     string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	m := newDocument()

	m.AddRow(12,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, data.BusinessName, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 4}),
			text.New("Payment method: "+data.PaymentMethod, props.Text{Top: 8}),
			text.New("Reference: "+data.Reference, props.Text{Top: 12}),
		),
		col.New(6),
	)

	addBillTo(m, data.InvoiceData)

	m.AddRow(15,
		text.NewCol(12, data.AmountPaid+" paid on "+data.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	addItems(m, data.InvoiceData)
	addTotals(m, data.InvoiceData)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount paid", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.AmountPaid, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	return render(m)
}
