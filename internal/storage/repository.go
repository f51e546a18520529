package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fynace/internal/core"
	"fynace/internal/profiles"

	_ "modernc.org/sqlite"
)

var _ profiles.Store = (*SQLiteRepository)(nil)

// SQLiteRepository is the durable profile store.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps the compare-and-set in ClaimLedger free of busy errors.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := MigrateProfiles(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get implements profiles.Store
func (r *SQLiteRepository) Get(ctx context.Context, userID string) (core.Profile, error) {
	row, err := r.queries.GetProfile(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return toProfile(row), nil
}

// EnsureUser implements profiles.Store
func (r *SQLiteRepository) EnsureUser(ctx context.Context, user core.User) (core.Profile, error) {
	if strings.TrimSpace(user.ID) == "" {
		return core.Profile{}, &core.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	err := r.queries.EnsureProfile(ctx, EnsureProfileParams{
		UserID: user.ID,
		Email:  user.Email,
		Now:    r.timestamp(),
	})
	if err != nil {
		return core.Profile{}, fmt.Errorf("ensure profile %s: %w", user.ID, err)
	}
	return r.Get(ctx, user.ID)
}

// ClaimLedger implements profiles.Store
func (r *SQLiteRepository) ClaimLedger(ctx context.Context, userID, ledgerID string) (string, error) {
	n, err := r.queries.ClaimLedger(ctx, ClaimLedgerParams{
		UserID:   userID,
		LedgerID: ledgerID,
		Now:      r.timestamp(),
	})
	if err != nil {
		return "", fmt.Errorf("claim ledger for %s: %w", userID, err)
	}
	p, err := r.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if n == 0 && p.LedgerID != ledgerID {
		slog.InfoContext(ctx, "Ledger already claimed", "user_id", userID, "ledger_id", p.LedgerID)
	}
	return p.LedgerID, nil
}

// ApplyPayment implements profiles.Store
func (r *SQLiteRepository) ApplyPayment(ctx context.Context, userID string, update core.PaymentUpdate) (core.Profile, error) {
	err := r.queries.UpsertPayment(ctx, UpsertPaymentParams{
		UserID:        userID,
		Plan:          string(update.Plan),
		PaymentStatus: string(update.PaymentStatus),
		PaymentID:     update.PaymentID,
		Now:           r.timestamp(),
	})
	if err != nil {
		return core.Profile{}, fmt.Errorf("apply payment for %s: %w", userID, err)
	}

	slog.InfoContext(ctx, "Payment state saved to SQLite",
		"user_id", userID,
		"plan", update.Plan,
		"payment_status", update.PaymentStatus,
		"payment_id", update.PaymentID)

	return r.Get(ctx, userID)
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func toProfile(row UserProfile) core.Profile {
	created, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	return core.Profile{
		UserID:        row.UserID,
		Email:         row.Email,
		LedgerID:      row.LedgerID.String,
		Plan:          core.Plan(row.Plan),
		PaymentStatus: core.PaymentStatus(row.PaymentStatus),
		PaymentID:     row.PaymentID,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
}
