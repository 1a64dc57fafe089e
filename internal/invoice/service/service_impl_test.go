package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicepay/internal/clock"
	"github.com/smallbiznis/invoicepay/internal/dbtest"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/invoicepay/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/invoicepay/internal/invoice/service"
	"github.com/smallbiznis/invoicepay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
	svc   invoicedomain.Service
	user  snowflake.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	db := dbtest.New(t)
	fc := clock.NewFakeClock(time.Date(2025, 10, 24, 12, 0, 0, 0, time.UTC))
	svc := invoiceservice.NewService(invoiceservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
		Repo:  invoicerepo.Provide(),
	})
	return &harness{db: db, clock: fc, node: node, svc: svc, user: node.Generate()}
}

func (h *harness) input() invoicedomain.InvoiceInput {
	return invoicedomain.InvoiceInput{
		UserID:       h.user,
		ClientName:   "Ada Stores",
		ClientEmail:  "billing@ada.example",
		Description:  "Consulting",
		Quantity:     decimal.NewFromInt(2),
		UnitPrice:    decimal.RequireFromString("500.00"),
		TaxRate:      decimal.RequireFromString("7.5"),
		Discount:     decimal.RequireFromString("25.00"),
		Currency:     "ngn",
		PaymentTerms: invoicedomain.TermsNet15,
	}
}

func TestCreateDerivesTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.Create(ctx, h.input())
	require.NoError(t, err)

	assert.Regexp(t, `^INV-[0-9A-F]{8}$`, inv.InvoiceNumber)
	assert.Equal(t, invoicedomain.StatusDraft, inv.Status)
	assert.Equal(t, "NGN", inv.Currency)
	assert.Equal(t, "1000.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "75.00", inv.TaxAmount.StringFixed(2))
	assert.Equal(t, "1050.00", inv.Total.StringFixed(2))
	assert.Equal(t, time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC), inv.DueDate)

	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.True(t, inv.Total.Equal(stored.Total))
	assert.True(t, stored.Subtotal.Add(stored.TaxAmount).Sub(stored.Discount).Equal(stored.Total))

	byNumber, err := h.svc.GetByNumber(ctx, inv.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, byNumber.ID)
}

func TestCreateLineItemsTakePrecedence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	input := h.input()
	input.TaxRate = decimal.Zero
	input.Discount = decimal.Zero
	input.LineItems = []invoicedomain.LineItemInput{
		{Description: "Design", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("19.99")},
		{Description: "Hosting", Quantity: decimal.RequireFromString("1.5"), UnitPrice: decimal.RequireFromString("10.00")},
	}

	inv, err := h.svc.Create(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "74.97", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "74.97", inv.Total.StringFixed(2))

	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.LineItems, 2)
	assert.Equal(t, "Design", stored.LineItems[0].Description)
	assert.Equal(t, "59.97", stored.LineItems[0].Amount.StringFixed(2))
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	input := h.input()
	input.ClientName = " "
	_, err := h.svc.Create(ctx, input)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidClient)

	input = h.input()
	input.Currency = "JPYX"
	_, err = h.svc.Create(ctx, input)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidCurrency)

	input = h.input()
	past := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	input.DueDate = &past
	_, err = h.svc.Create(ctx, input)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidDueDate)

	input = h.input()
	input.LineItems = []invoicedomain.LineItemInput{{Description: "", Quantity: decimal.NewFromInt(1)}}
	_, err = h.svc.Create(ctx, input)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidLineItem)

	assert.Equal(t, int64(0), dbtest.Count(t, h.db, "SELECT COUNT(1) FROM invoices"))
}

func TestUpdateReplacesLineItemsAndRecomputes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	input := h.input()
	input.LineItems = []invoicedomain.LineItemInput{
		{Description: "A", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)},
		{Description: "B", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(20)},
	}
	inv, err := h.svc.Create(ctx, input)
	require.NoError(t, err)

	input.LineItems = []invoicedomain.LineItemInput{
		{Description: "C", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(25)},
	}
	input.TaxRate = decimal.NewFromInt(10)
	input.Discount = decimal.Zero
	updated, err := h.svc.Update(ctx, inv.ID.String(), input)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, updated.InvoiceNumber)
	assert.Equal(t, "100.00", updated.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", updated.TaxAmount.StringFixed(2))
	assert.Equal(t, "110.00", updated.Total.StringFixed(2))

	assert.Equal(t, int64(1), dbtest.Count(t, h.db, "SELECT COUNT(1) FROM invoice_line_items WHERE invoice_id = ?", inv.ID))
}

func TestUpdateRejectsClosedInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.Create(ctx, h.input())
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, inv.ID.String())
	require.NoError(t, err)

	_, err = h.svc.Update(ctx, inv.ID.String(), h.input())
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceClosed)
}

func TestStatusChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.Create(ctx, h.input())
	require.NoError(t, err)

	sent, err := h.svc.MarkSent(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusSent, sent.Status)

	again, err := h.svc.MarkSent(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusSent, again.Status)

	_, err = h.svc.SetStatus(ctx, inv.ID.String(), invoicedomain.StatusPaid)
	require.ErrorIs(t, err, invoicedomain.ErrPaidRequiresPayment)

	_, err = h.svc.SetStatus(ctx, inv.ID.String(), invoicedomain.StatusDraft)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	cancelled, err := h.svc.Cancel(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusCancelled, cancelled.Status)

	_, err = h.svc.SetStatus(ctx, inv.ID.String(), invoicedomain.StatusSent)
	require.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	_, err = h.svc.Cancel(ctx, "not-a-number")
	require.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)

	_, err = h.svc.Cancel(ctx, h.node.Generate().String())
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	yesterday := time.Date(2025, 10, 23, 0, 0, 0, 0, time.UTC)
	issue := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	input := h.input()
	input.IssueDate = &issue
	input.DueDate = &yesterday
	due, err := h.svc.Create(ctx, input)
	require.NoError(t, err)
	_, err = h.svc.MarkSent(ctx, due.ID.String())
	require.NoError(t, err)

	notDue, err := h.svc.Create(ctx, h.input())
	require.NoError(t, err)

	updated, err := h.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	updated, err = h.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	got, err := h.svc.GetByID(ctx, due.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusOverdue, got.Status)

	got, err = h.svc.GetByID(ctx, notDue.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusDraft, got.Status)

	h.clock.Advance(30 * 24 * time.Hour)
	updated, err = h.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}

func TestDuplicateStartsFreshDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	input := h.input()
	input.LineItems = []invoicedomain.LineItemInput{
		{Description: "Retainer", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(300)},
	}
	source, err := h.svc.Create(ctx, input)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, source.ID.String())
	require.NoError(t, err)

	h.clock.Advance(48 * time.Hour)
	copied, err := h.svc.Duplicate(ctx, source.ID.String())
	require.NoError(t, err)

	assert.NotEqual(t, source.ID, copied.ID)
	assert.NotEqual(t, source.InvoiceNumber, copied.InvoiceNumber)
	assert.Equal(t, invoicedomain.StatusDraft, copied.Status)
	assert.Nil(t, copied.GatewayReference)
	assert.Equal(t, time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC), copied.IssueDate)
	assert.Equal(t, time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC), copied.DueDate)
	assert.True(t, source.Total.Equal(copied.Total))
	assert.Equal(t, int64(1), dbtest.Count(t, h.db, "SELECT COUNT(1) FROM invoice_line_items WHERE invoice_id = ?", copied.ID))
}

func TestStatsAggregatesByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, h.input())
	require.NoError(t, err)
	_, err = h.svc.MarkSent(ctx, first.ID.String())
	require.NoError(t, err)

	second, err := h.svc.Create(ctx, h.input())
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, second.ID.String())
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, h.input())
	require.NoError(t, err)

	stats, err := h.svc.Stats(ctx, &h.user)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Counts[invoicedomain.StatusSent])
	assert.Equal(t, int64(1), stats.Counts[invoicedomain.StatusCancelled])
	assert.Equal(t, int64(1), stats.Counts[invoicedomain.StatusDraft])
	assert.Equal(t, int64(0), stats.Counts[invoicedomain.StatusPaid])
	assert.Equal(t, "1050.00", stats.Outstanding.StringFixed(2))
	assert.True(t, stats.Revenue.IsZero())
}

func TestListPaginates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for range 5 {
		_, err := h.svc.Create(ctx, h.input())
		require.NoError(t, err)
	}

	first, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 3},
		UserID:     &h.user,
	})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 3)
	require.True(t, first.HasMore)

	second, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken},
		UserID:     &h.user,
	})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 2)
	require.False(t, second.HasMore)
	assert.Greater(t, int64(first.Invoices[2].ID), int64(second.Invoices[0].ID))
}

func TestDueForReminder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	soon := time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC)
	input := h.input()
	input.DueDate = &soon
	dueSoon, err := h.svc.Create(ctx, input)
	require.NoError(t, err)

	later := h.input()
	later.PaymentTerms = invoicedomain.TermsNet60
	_, err = h.svc.Create(ctx, later)
	require.NoError(t, err)

	noEmail := h.input()
	noEmail.ClientEmail = ""
	noEmail.DueDate = &soon
	_, err = h.svc.Create(ctx, noEmail)
	require.NoError(t, err)

	items, err := h.svc.DueForReminder(ctx, 3, true, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, dueSoon.ID, items[0].ID)
}
