package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fynace/internal/core"
	"fynace/internal/ledger"
	"fynace/internal/payments"
	"fynace/internal/profiles"
)

// Finance is the user-facing surface of the core. It resolves the caller's
// ledger and delegates to the transaction, aggregation and payment services.
type Finance struct {
	ledgers     ledger.Store
	profiles    profiles.Store
	provisioner *LedgerProvisioner
	aggregation *AggregationEngine
	payments    *PaymentService
}

func NewFinance(ledgers ledger.Store, profileStore profiles.Store, gateway payments.Gateway, publisher PlanPublisher) *Finance {
	return &Finance{
		ledgers:     ledgers,
		profiles:    profileStore,
		provisioner: NewLedgerProvisioner(ledgers, profileStore),
		aggregation: NewAggregationEngine(ledgers),
		payments:    NewPaymentService(gateway, profileStore, publisher),
	}
}

// CreateTransaction validates before touching any backend, then appends to
// the caller's ledger, provisioning it on first use.
func (f *Finance) CreateTransaction(ctx context.Context, user core.User, draft core.Draft) (core.Transaction, error) {
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, err
	}
	ledgerID, err := f.provisioner.LedgerFor(ctx, user)
	if err != nil {
		slog.ErrorContext(ctx, "Ledger provisioning failed", "user_id", user.ID, "operation", "create_transaction", "error", err)
		return core.Transaction{}, err
	}
	tx, err := NewTransactionService(f.ledgers, ledgerID).Create(ctx, draft)
	if err != nil {
		slog.ErrorContext(ctx, "Transaction not saved", "user_id", user.ID, "ledger_id", ledgerID, "error", err)
		return core.Transaction{}, err
	}
	return tx, nil
}

// ListTransactions returns the caller's entries passing filter. A ledger
// backend outage yields an empty listing.
func (f *Finance) ListTransactions(ctx context.Context, user core.User, filter core.Filter) ([]core.Entry, error) {
	ledgerID, err := f.readLedger(ctx, user, "list_transactions")
	if err != nil || ledgerID == "" {
		return []core.Entry{}, err
	}
	return NewTransactionService(f.ledgers, ledgerID).List(ctx, filter), nil
}

// GetSummary returns the totals and category breakdown of the caller's ledger.
func (f *Finance) GetSummary(ctx context.Context, user core.User) (core.Report, error) {
	ledgerID, err := f.readLedger(ctx, user, "get_summary")
	if err != nil {
		return core.Report{}, err
	}
	if ledgerID == "" {
		return Report(nil, nil), nil
	}
	return f.aggregation.Report(ctx, ledgerID), nil
}

func (f *Finance) CreatePayment(ctx context.Context, user core.User, req core.PreferenceRequest) (core.Preference, error) {
	if _, err := f.profiles.EnsureUser(ctx, user); err != nil {
		return core.Preference{}, fmt.Errorf("ensure profile: %w", err)
	}
	pref, err := f.payments.CreatePreference(ctx, user, req)
	if err != nil {
		slog.ErrorContext(ctx, "Payment creation failed", "user_id", user.ID, "error", err)
		return core.Preference{}, err
	}
	return pref, nil
}

func (f *Finance) ReconcilePaymentWebhook(ctx context.Context, ev core.WebhookEvent) (core.WebhookResult, error) {
	res, err := f.payments.ReconcileWebhook(ctx, ev)
	if err != nil {
		slog.ErrorContext(ctx, "Webhook reconciliation failed",
			"topic", ev.Topic,
			"resource_id", ev.ResourceID,
			"error", err)
	}
	return res, err
}

func (f *Finance) GetPaymentStatus(ctx context.Context, user core.User, paymentID string) (core.PaymentStatusResult, error) {
	res, err := f.payments.PaymentStatus(ctx, user, paymentID)
	if err != nil && !errors.Is(err, core.ErrForbidden) {
		slog.ErrorContext(ctx, "Payment status lookup failed",
			"user_id", user.ID,
			"payment_id", paymentID,
			"error", err)
	}
	return res, err
}

// readLedger resolves the ledger on a read path. A ledger backend outage during
// provisioning degrades to "" with no error; profile store errors propagate.
func (f *Finance) readLedger(ctx context.Context, user core.User, op string) (string, error) {
	ledgerID, err := f.provisioner.LedgerFor(ctx, user)
	if err == nil {
		return ledgerID, nil
	}
	if errors.Is(err, core.ErrBackendUnavailable) {
		slog.WarnContext(ctx, "Ledger unavailable, returning empty result",
			"user_id", user.ID,
			"operation", op,
			"error", err)
		return "", nil
	}
	slog.ErrorContext(ctx, "Ledger lookup failed", "user_id", user.ID, "operation", op, "error", err)
	return "", err
}
