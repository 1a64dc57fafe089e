package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicepay/internal/clock"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/internal/money"
	"github.com/smallbiznis/invoicepay/pkg/db/option"
	"github.com/smallbiznis/invoicepay/pkg/db/pagination"
	"github.com/smallbiznis/invoicepay/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  invoicedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  invoicedomain.Repository

	invoicerepo repository.Repository[invoicedomain.Invoice]
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, input invoicedomain.InvoiceInput) (*invoicedomain.Invoice, error) {
	if input.UserID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}

	now := s.clock.Now()
	invoice := &invoicedomain.Invoice{
		ID:            s.genID.Generate(),
		UserID:        input.UserID,
		InvoiceNumber: invoicedomain.NewInvoiceNumber(),
		Status:        invoicedomain.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.applyInput(invoice, input, now); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, invoice); err != nil {
			return err
		}
		return s.repo.ReplaceLineItems(ctx, tx, invoice.ID, invoice.LineItems)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total", invoice.Total.StringFixed(money.Scale)),
		zap.String("currency", invoice.Currency),
	)
	return invoice, nil
}

func (s *Service) Update(ctx context.Context, id string, input invoicedomain.InvoiceInput) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.IsTerminal() {
			return invoicedomain.ErrInvoiceClosed
		}

		now := s.clock.Now()
		if err := s.applyInput(invoice, input, now); err != nil {
			return err
		}
		invoice.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.repo.ReplaceLineItems(ctx, tx, invoice.ID, invoice.LineItems); err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyInput copies editable fields onto invoice and recomputes every derived amount.
func (s *Service) applyInput(invoice *invoicedomain.Invoice, input invoicedomain.InvoiceInput, now time.Time) error {
	clientName := strings.TrimSpace(input.ClientName)
	if clientName == "" {
		return invoicedomain.ErrInvalidClient
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	if !money.Supported(currency) {
		return invoicedomain.ErrInvalidCurrency
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = invoicedomain.TermsNet30
	}
	if !terms.Valid() {
		return invoicedomain.ErrInvalidTerms
	}
	if input.Quantity.IsNegative() || input.UnitPrice.IsNegative() ||
		input.TaxRate.IsNegative() || input.Discount.IsNegative() {
		return invoicedomain.ErrInvalidAmount
	}

	issueDate := clock.StartOfDay(now)
	if input.IssueDate != nil && !input.IssueDate.IsZero() {
		issueDate = clock.StartOfDay(*input.IssueDate)
	}
	dueDate := terms.DueDateFor(issueDate)
	if input.DueDate != nil && !input.DueDate.IsZero() {
		dueDate = clock.StartOfDay(*input.DueDate)
	}
	if dueDate.Before(issueDate) {
		return invoicedomain.ErrInvalidDueDate
	}

	items := make([]invoicedomain.LineItem, 0, len(input.LineItems))
	for i, in := range input.LineItems {
		description := strings.TrimSpace(in.Description)
		if description == "" || in.Quantity.IsNegative() || in.UnitPrice.IsNegative() {
			return invoicedomain.ErrInvalidLineItem
		}
		items = append(items, invoicedomain.LineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      money.LineAmount(in.Quantity, in.UnitPrice),
			Position:    i,
			CreatedAt:   now,
		})
	}

	invoice.ClientName = clientName
	invoice.ClientEmail = strings.TrimSpace(input.ClientEmail)
	invoice.ClientPhone = strings.TrimSpace(input.ClientPhone)
	invoice.ClientAddress = strings.TrimSpace(input.ClientAddress)
	invoice.Description = strings.TrimSpace(input.Description)
	invoice.Quantity = input.Quantity
	invoice.UnitPrice = input.UnitPrice
	invoice.TaxRate = input.TaxRate
	invoice.Discount = input.Discount
	invoice.Currency = currency
	invoice.PaymentTerms = terms
	invoice.IssueDate = issueDate
	invoice.DueDate = dueDate
	invoice.Notes = strings.TrimSpace(input.Notes)
	invoice.LineItems = items
	recomputeTotals(invoice)
	return nil
}

func recomputeTotals(invoice *invoicedomain.Invoice) {
	totals := money.Compute(money.Input{
		Quantity:  invoice.Quantity,
		UnitPrice: invoice.UnitPrice,
		Lines: lo.Map(invoice.LineItems, func(item invoicedomain.LineItem, _ int) money.Line {
			return money.Line{Quantity: item.Quantity, UnitPrice: item.UnitPrice}
		}),
		TaxRate:  invoice.TaxRate,
		Discount: invoice.Discount,
	})
	invoice.Subtotal = totals.Subtotal
	invoice.TaxAmount = totals.TaxAmount
	invoice.Total = totals.Total
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.withLineItems(ctx, invoice)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*invoicedomain.Invoice, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	return s.withLineItems(ctx, invoice)
}

func (s *Service) withLineItems(ctx context.Context, invoice *invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	items, err := s.repo.ListLineItems(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := &invoicedomain.Invoice{}
	if req.UserID != nil {
		filter.UserID = *req.UserID
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = *req.Status
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	options := []option.QueryOption{
		option.WithSortBy("id", true),
		option.WithLimit(pageSize + 1),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, pagination.ErrInvalidPageToken
		}
		options = append(options, option.WithCondition("id < ?", cursorID))
	}

	items, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

// Duplicate copies an invoice into a new draft with a fresh number and dates.
func (s *Service) Duplicate(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	source, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	issueDate := clock.StartOfDay(now)
	copied := *source
	copied.ID = s.genID.Generate()
	copied.InvoiceNumber = invoicedomain.NewInvoiceNumber()
	copied.Status = invoicedomain.StatusDraft
	copied.IssueDate = issueDate
	copied.DueDate = source.PaymentTerms.DueDateFor(issueDate)
	copied.PaidDate = nil
	copied.GatewayReference = nil
	copied.CreatedAt = now
	copied.UpdatedAt = now
	copied.LineItems = lo.Map(source.LineItems, func(item invoicedomain.LineItem, _ int) invoicedomain.LineItem {
		item.ID = s.genID.Generate()
		item.InvoiceID = copied.ID
		item.CreatedAt = now
		return item
	})
	recomputeTotals(&copied)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &copied); err != nil {
			return err
		}
		return s.repo.ReplaceLineItems(ctx, tx, copied.ID, copied.LineItems)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice duplicated",
		zap.String("source_invoice_number", source.InvoiceNumber),
		zap.String("invoice_number", copied.InvoiceNumber),
	)
	return &copied, nil
}

func (s *Service) Stats(ctx context.Context, userID *snowflake.ID) (invoicedomain.Stats, error) {
	rows, err := s.repo.StatusTotals(ctx, s.db, userID)
	if err != nil {
		return invoicedomain.Stats{}, err
	}

	stats := invoicedomain.Stats{
		Counts:      make(map[invoicedomain.Status]int64, 5),
		Revenue:     decimal.Zero,
		Outstanding: decimal.Zero,
	}
	for _, status := range []invoicedomain.Status{
		invoicedomain.StatusDraft,
		invoicedomain.StatusSent,
		invoicedomain.StatusPaid,
		invoicedomain.StatusOverdue,
		invoicedomain.StatusCancelled,
	} {
		stats.Counts[status] = 0
	}
	for _, row := range rows {
		stats.Counts[row.Status] += row.Count
	}
	stats.Total = lo.SumBy(rows, func(row invoicedomain.StatusTotal) int64 { return row.Count })

	sumFor := func(statuses ...invoicedomain.Status) decimal.Decimal {
		return lo.Reduce(rows, func(agg decimal.Decimal, row invoicedomain.StatusTotal, _ int) decimal.Decimal {
			if lo.Contains(statuses, row.Status) {
				return agg.Add(row.Total)
			}
			return agg
		}, decimal.Zero)
	}
	stats.Revenue = money.Round(sumFor(invoicedomain.StatusPaid))
	stats.Outstanding = money.Round(sumFor(invoicedomain.StatusSent, invoicedomain.StatusOverdue))
	return stats, nil
}

// MarkSent records a successful delivery. Only drafts change status; sending
// again later leaves the current status alone.
func (s *Service) MarkSent(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.changeStatus(ctx, id, func(current invoicedomain.Status) (invoicedomain.Status, error) {
		if current == invoicedomain.StatusDraft {
			return invoicedomain.StatusSent, nil
		}
		return current, nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.SetStatus(ctx, id, invoicedomain.StatusCancelled)
}

// SetStatus applies an explicit status change. Paid is only reachable by
// recording a payment.
func (s *Service) SetStatus(ctx context.Context, id string, status invoicedomain.Status) (*invoicedomain.Invoice, error) {
	if !status.Valid() {
		return nil, invoicedomain.ErrInvalidStatus
	}
	if status == invoicedomain.StatusPaid {
		return nil, invoicedomain.ErrPaidRequiresPayment
	}
	return s.changeStatus(ctx, id, func(current invoicedomain.Status) (invoicedomain.Status, error) {
		if err := invoicedomain.Transition(current, status); err != nil {
			return current, err
		}
		return status, nil
	})
}

func (s *Service) changeStatus(ctx context.Context, id string, next func(invoicedomain.Status) (invoicedomain.Status, error)) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var result *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		previous := invoice.Status
		status, err := next(previous)
		if err != nil {
			return err
		}
		result = invoice
		if status == previous {
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, invoice.ID, status, now); err != nil {
			return err
		}
		invoice.Status = status
		invoice.UpdatedAt = now

		s.log.Info("invoice status changed",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.String("from", string(previous)),
			zap.String("to", string(status)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SweepOverdue marks open invoices past their due date as overdue. Running it
// again the same day changes nothing.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	updated, err := s.repo.MarkOverdue(ctx, s.db, clock.StartOfDay(now), now)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.log.Info("invoices marked overdue", zap.Int64("count", updated))
	}
	return updated, nil
}

func (s *Service) DueForReminder(ctx context.Context, daysBeforeDue int, includeOverdue bool, limit int) ([]invoicedomain.Invoice, error) {
	if daysBeforeDue < 0 {
		daysBeforeDue = 0
	}
	until := clock.Today(s.clock).AddDate(0, 0, daysBeforeDue)
	return s.repo.ListDueForReminder(ctx, s.db, until, includeOverdue, limit)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
