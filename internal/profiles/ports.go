// Package profiles defines the per-user profile store the core reads and writes.
package profiles

import (
	"context"

	"fynace/internal/core"
)

// Store keeps one profile per user id.
//
// Only the ledger id and the payment fields are ever written by the core.
type Store interface {
	// Get returns core.ErrNotFound when the user has no profile yet.
	Get(ctx context.Context, userID string) (core.Profile, error)

	// EnsureUser creates a free profile on first access and returns the stored one.
	// An existing profile keeps its fields; only a blank email is filled in.
	EnsureUser(ctx context.Context, user core.User) (core.Profile, error)

	// ClaimLedger sets the ledger id only when none is set yet and returns the
	// id that is stored afterwards, which may belong to an earlier writer.
	ClaimLedger(ctx context.Context, userID, ledgerID string) (string, error)

	// ApplyPayment upserts the payment fields, last write wins.
	ApplyPayment(ctx context.Context, userID string, update core.PaymentUpdate) (core.Profile, error)
}
