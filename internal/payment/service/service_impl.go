package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicepay/internal/clock"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/internal/money"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/smallbiznis/invoicepay/internal/payment/reference"
	"github.com/smallbiznis/invoicepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	fallbackCheckoutEmail = "customer@example.com"
	providerManual        = "manual"
	maxResolveAttempts    = 3

	opApplySuccess  = "apply_success"
	opApplyFailure  = "apply_failure"
	opManualPayment = "manual_payment"
)

// errRetryResolution aborts a reconciliation transaction whose recovery path
// found a transaction row created concurrently. The caller rolls back and
// resolves again through the normal locking order.
var errRetryResolution = errors.New("retry_resolution")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	References  *reference.Generator
	Gateway     paymentdomain.Gateway `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics   `optional:"true"`
}

// Service is the reconciliation engine. It is the only code path that moves
// a payment transaction to successful or an invoice to paid.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	references  *reference.Generator
	gateway     paymentdomain.Gateway
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.reconcile"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		references:  p.References,
		gateway:     p.Gateway,
		obsMetrics:  p.ObsMetrics,
	}
}

// resolved is a transaction and its invoice, both locked for the current
// database transaction.
type resolved struct {
	txn     *paymentdomain.PaymentTransaction
	invoice *invoicedomain.Invoice
}

// ApplySuccess marks the referenced transaction successful and its invoice
// paid in one database transaction. Applying the same event again returns the
// stored state with OutcomeAlreadyApplied.
func (s *Service) ApplySuccess(ctx context.Context, event paymentdomain.ChargeSuccess) (*paymentdomain.Settlement, error) {
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	var settlement *paymentdomain.Settlement
	err := s.reconcile(ctx, event.Reference, event.Amount, event.Currency, func(tx *gorm.DB, r resolved) error {
		var err error
		settlement, err = s.applySuccess(ctx, tx, r, event)
		return err
	})
	s.record(ctx, opApplySuccess, settlement, err)
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// ApplyFailure marks the referenced transaction failed. The invoice is left as
// it is, and a transaction that already succeeded is never downgraded.
func (s *Service) ApplyFailure(ctx context.Context, event paymentdomain.ChargeFailed) (*paymentdomain.Settlement, error) {
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	var settlement *paymentdomain.Settlement
	err := s.reconcile(ctx, event.Reference, event.Amount, event.Currency, func(tx *gorm.DB, r resolved) error {
		var err error
		settlement, err = s.applyFailure(ctx, tx, r, event)
		return err
	})
	s.record(ctx, opApplyFailure, settlement, err)
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func (s *Service) reconcile(
	ctx context.Context,
	ref string,
	amount decimal.Decimal,
	currency string,
	apply func(tx *gorm.DB, r resolved) error,
) error {
	var err error
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r, err := s.resolve(ctx, tx, ref, amount, currency)
			if err != nil {
				return err
			}
			return apply(tx, r)
		})
		if !errors.Is(err, errRetryResolution) {
			return err
		}
		s.log.Debug("transaction appeared during recovery, resolving again",
			zap.String("reference", ref),
			zap.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("resolve %s: %w", ref, err)
}

// resolve locks the transaction row for ref and then its invoice. When no row
// exists the invoice carrying ref as its gateway reference is locked instead
// and a pending transaction is reconstructed for it.
func (s *Service) resolve(ctx context.Context, tx *gorm.DB, ref string, amount decimal.Decimal, currency string) (resolved, error) {
	txn, err := s.repo.FindByReferenceForUpdate(ctx, tx, ref)
	if err != nil {
		return resolved{}, err
	}
	if txn != nil {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, txn.InvoiceID)
		if err != nil {
			return resolved{}, err
		}
		if invoice == nil {
			s.log.Error("payment transaction points at a missing invoice",
				zap.String("reference", ref),
				zap.String("invoice_id", txn.InvoiceID.String()),
			)
			return resolved{}, fmt.Errorf("invoice %s: %w", txn.InvoiceID, invoicedomain.ErrInvoiceNotFound)
		}
		return resolved{txn: txn, invoice: invoice}, nil
	}

	invoice, err := s.invoiceRepo.FindByGatewayReferenceForUpdate(ctx, tx, ref)
	if err != nil {
		return resolved{}, err
	}
	if invoice == nil {
		s.log.Warn("payment reference matches no transaction or invoice", zap.String("reference", ref))
		return resolved{}, paymentdomain.ErrTransactionNotFound
	}

	// A checkout holding the invoice lock may have committed the row since the
	// first lookup. Locking it now would invert the lock order.
	existing, err := s.repo.FindByReference(ctx, tx, ref)
	if err != nil {
		return resolved{}, err
	}
	if existing != nil {
		return resolved{}, errRetryResolution
	}

	if amount.IsZero() {
		amount = invoice.Total
	}
	if strings.TrimSpace(currency) == "" {
		currency = invoice.Currency
	}
	now := s.clock.Now()
	txn = &paymentdomain.PaymentTransaction{
		ID:                   s.genID.Generate(),
		InvoiceID:            invoice.ID,
		TransactionReference: ref,
		Amount:               amount,
		Currency:             strings.ToUpper(strings.TrimSpace(currency)),
		Status:               paymentdomain.TransactionStatusPending,
		PaymentMethod:        paymentdomain.PaymentMethodGateway,
		Provider:             paymentdomain.ProviderPaystack,
		PayerEmail:           invoice.ClientEmail,
		Notes:                "reconstructed from gateway reference",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, tx, txn); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return resolved{}, errRetryResolution
		}
		return resolved{}, err
	}

	s.log.Warn("payment transaction reconstructed from invoice gateway reference",
		zap.String("reference", ref),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return resolved{txn: txn, invoice: invoice}, nil
}

func (s *Service) applySuccess(ctx context.Context, tx *gorm.DB, r resolved, event paymentdomain.ChargeSuccess) (*paymentdomain.Settlement, error) {
	txn, invoice := r.txn, r.invoice
	if txn.Status == paymentdomain.TransactionStatusSuccessful {
		s.log.Info("payment already applied",
			zap.String("reference", txn.TransactionReference),
			zap.String("invoice_number", invoice.InvoiceNumber),
		)
		return &paymentdomain.Settlement{Invoice: invoice, Transaction: txn, Outcome: paymentdomain.OutcomeAlreadyApplied}, nil
	}

	if !event.Amount.IsZero() && !event.Amount.Equal(txn.Amount) {
		s.log.Warn("captured amount differs from transaction amount",
			zap.String("reference", txn.TransactionReference),
			zap.String("expected", txn.Amount.StringFixed(2)),
			zap.String("captured", event.Amount.StringFixed(2)),
		)
	}
	if event.Currency != "" && !strings.EqualFold(event.Currency, txn.Currency) {
		s.log.Warn("captured currency differs from transaction currency",
			zap.String("reference", txn.TransactionReference),
			zap.String("expected", txn.Currency),
			zap.String("captured", event.Currency),
		)
	}

	now := s.clock.Now()
	txn.Status = paymentdomain.TransactionStatusSuccessful
	if email := strings.TrimSpace(event.PayerEmail); email != "" {
		txn.PayerEmail = email
	}
	if name := strings.TrimSpace(event.PayerName); name != "" {
		txn.PayerName = name
	}
	if len(event.Raw) > 0 {
		txn.GatewayResponse = datatypes.JSON(event.Raw)
	}
	txn.PaymentDate = &now
	txn.UpdatedAt = now

	outcome := paymentdomain.OutcomeApplied
	if invoice.Status.IsTerminal() {
		outcome = paymentdomain.OutcomeInvoiceClosed
		txn.Notes = appendNote(txn.Notes, fmt.Sprintf("payment captured after invoice was %s", invoice.Status))
	}

	if err := s.repo.UpdateSettlement(ctx, tx, txn); err != nil {
		return nil, err
	}

	if outcome == paymentdomain.OutcomeInvoiceClosed {
		s.log.Warn("payment captured for closed invoice",
			zap.String("reference", txn.TransactionReference),
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.String("invoice_status", string(invoice.Status)),
		)
		return &paymentdomain.Settlement{Invoice: invoice, Transaction: txn, Outcome: outcome}, nil
	}

	if err := invoicedomain.Transition(invoice.Status, invoicedomain.StatusPaid); err != nil {
		return nil, err
	}
	paidDate := clock.StartOfDay(now)
	if event.PaidAt != nil && !event.PaidAt.IsZero() {
		paidDate = clock.StartOfDay(event.PaidAt.UTC())
	}
	if err := s.invoiceRepo.MarkPaid(ctx, tx, invoice.ID, paidDate, now); err != nil {
		return nil, err
	}
	invoice.Status = invoicedomain.StatusPaid
	invoice.PaidDate = &paidDate
	invoice.UpdatedAt = now

	s.log.Info("payment applied",
		zap.String("reference", txn.TransactionReference),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("amount", txn.Amount.StringFixed(2)),
		zap.String("currency", txn.Currency),
	)
	return &paymentdomain.Settlement{Invoice: invoice, Transaction: txn, Outcome: outcome}, nil
}

func (s *Service) applyFailure(ctx context.Context, tx *gorm.DB, r resolved, event paymentdomain.ChargeFailed) (*paymentdomain.Settlement, error) {
	txn, invoice := r.txn, r.invoice
	if txn.Status == paymentdomain.TransactionStatusSuccessful {
		s.log.Warn("failure event for successful transaction ignored",
			zap.String("reference", txn.TransactionReference),
			zap.String("reason", event.Reason),
		)
		return &paymentdomain.Settlement{Invoice: invoice, Transaction: txn, Outcome: paymentdomain.OutcomeIgnored}, nil
	}

	now := s.clock.Now()
	txn.Status = paymentdomain.TransactionStatusFailed
	txn.Notes = strings.TrimSpace(event.Reason)
	if email := strings.TrimSpace(event.PayerEmail); email != "" {
		txn.PayerEmail = email
	}
	if len(event.Raw) > 0 {
		txn.GatewayResponse = datatypes.JSON(event.Raw)
	}
	txn.UpdatedAt = now

	if err := s.repo.UpdateSettlement(ctx, tx, txn); err != nil {
		return nil, err
	}

	s.log.Info("payment failure recorded",
		zap.String("reference", txn.TransactionReference),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("reason", txn.Notes),
	)
	return &paymentdomain.Settlement{Invoice: invoice, Transaction: txn, Outcome: paymentdomain.OutcomeFailureRecorded}, nil
}

// InitializeCheckout opens a hosted checkout for the invoice total. The pending
// transaction and the invoice's gateway reference are stored before the
// checkout URL is returned.
func (s *Service) InitializeCheckout(ctx context.Context, invoiceID string, callbackURL string) (*paymentdomain.Checkout, error) {
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if !invoice.Status.Payable() {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}

	amountMinor := money.ToMinor(invoice.Total, invoice.Currency)
	if amountMinor <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	ref, err := s.references.Next(ctx, s.db, invoice.InvoiceNumber)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(invoice.ClientEmail)
	if email == "" {
		email = fallbackCheckoutEmail
	}

	result, err := s.gateway.Initialize(ctx, paymentdomain.InitializeRequest{
		Reference:   ref,
		AmountMinor: amountMinor,
		Email:       email,
		Currency:    invoice.Currency,
		CallbackURL: strings.TrimSpace(callbackURL),
		Metadata: map[string]any{
			"invoice_id":     invoice.ID.String(),
			"invoice_number": invoice.InvoiceNumber,
			"client_name":    invoice.ClientName,
		},
	})
	if err != nil {
		s.log.Warn("checkout initialize failed",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.String("reference", ref),
			zap.Error(err),
		)
		return nil, err
	}

	var txn *paymentdomain.PaymentTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if !locked.Status.Payable() {
			return paymentdomain.ErrInvoiceNotPayable
		}

		now := s.clock.Now()
		txn = &paymentdomain.PaymentTransaction{
			ID:                   s.genID.Generate(),
			InvoiceID:            locked.ID,
			TransactionReference: ref,
			Amount:               locked.Total,
			Currency:             locked.Currency,
			Status:               paymentdomain.TransactionStatusPending,
			PaymentMethod:        paymentdomain.PaymentMethodGateway,
			Provider:             paymentdomain.ProviderPaystack,
			PayerEmail:           email,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if len(result.Raw) > 0 {
			txn.GatewayResponse = datatypes.JSON(result.Raw)
		}
		if err := s.repo.Insert(ctx, tx, txn); err != nil {
			return err
		}
		return s.invoiceRepo.SetGatewayReference(ctx, tx, locked.ID, ref, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout initialized",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("reference", ref),
	)
	return &paymentdomain.Checkout{
		CheckoutURL:   result.AuthorizationURL,
		Reference:     ref,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
	}, nil
}

// VerifyAndApply asks the gateway for the outcome of reference and applies it
// when the charge succeeded.
func (s *Service) VerifyAndApply(ctx context.Context, ref string) (*paymentdomain.Settlement, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, paymentdomain.ErrInvalidReference
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}

	verification, err := s.gateway.Verify(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !verification.Succeeded() {
		s.log.Info("verified payment is not successful",
			zap.String("reference", ref),
			zap.String("status", verification.Status),
		)
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentNotSuccessful, verification.Status)
	}

	return s.ApplySuccess(ctx, paymentdomain.ChargeSuccess{
		Reference:       ref,
		Amount:          verification.Amount,
		Currency:        verification.Currency,
		PayerEmail:      verification.CustomerEmail,
		PayerName:       verification.CustomerName,
		PaidAt:          verification.PaidAt,
		GatewayResponse: verification.GatewayResponse,
		Raw:             verification.Raw,
	})
}

// InvoiceForReference finds the invoice a reference was issued for without
// changing anything.
func (s *Service) InvoiceForReference(ctx context.Context, ref string) (*invoicedomain.Invoice, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	txn, err := s.repo.FindByReference(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	var invoice *invoicedomain.Invoice
	if txn != nil {
		invoice, err = s.invoiceRepo.FindByID(ctx, s.db, txn.InvoiceID)
	} else {
		invoice, err = s.invoiceRepo.FindByGatewayReference(ctx, s.db, ref)
	}
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return invoice, nil
}

// RecordManualPayment stores an offline payment for the invoice total and
// settles it through the same path as gateway payments.
func (s *Service) RecordManualPayment(ctx context.Context, invoiceID string, payment paymentdomain.ManualPayment) (*paymentdomain.Settlement, error) {
	if !payment.Method.Manual() {
		return nil, paymentdomain.ErrInvalidPaymentMethod
	}
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}

	var settlement *paymentdomain.Settlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if !invoice.Status.Payable() {
			return paymentdomain.ErrInvoiceNotPayable
		}

		ref, err := s.references.Next(ctx, tx, invoice.InvoiceNumber)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		txn := &paymentdomain.PaymentTransaction{
			ID:                   s.genID.Generate(),
			InvoiceID:            invoice.ID,
			TransactionReference: ref,
			Amount:               invoice.Total,
			Currency:             invoice.Currency,
			Status:               paymentdomain.TransactionStatusPending,
			PaymentMethod:        payment.Method,
			Provider:             providerManual,
			PayerName:            strings.TrimSpace(payment.PayerName),
			Notes:                strings.TrimSpace(payment.Notes),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.repo.Insert(ctx, tx, txn); err != nil {
			return err
		}

		settlement, err = s.applySuccess(ctx, tx, resolved{txn: txn, invoice: invoice}, paymentdomain.ChargeSuccess{
			Reference: ref,
			Amount:    invoice.Total,
			Currency:  invoice.Currency,
			PayerName: payment.PayerName,
			PaidAt:    payment.PaidAt,
		})
		return err
	})
	s.record(ctx, opManualPayment, settlement, err)
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func (s *Service) ListTransactions(ctx context.Context, invoiceID string) ([]paymentdomain.PaymentTransaction, error) {
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.repo.ListByInvoice(ctx, s.db, id)
}

func (s *Service) record(ctx context.Context, operation string, settlement *paymentdomain.Settlement, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, paymentdomain.ErrTransactionNotFound):
		outcome = "not_found"
	case err == nil && settlement != nil:
		outcome = string(settlement.Outcome)
	}
	s.obsMetrics.RecordReconciliation(ctx, operation, outcome)
}

func appendNote(notes, note string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return note
	}
	return notes + "; " + note
}

func parseInvoiceID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
