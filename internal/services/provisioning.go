package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"fynace/internal/core"
	"fynace/internal/ledger"
	"fynace/internal/profiles"
)

// LedgerProvisioner resolves a user's ledger, creating it on first use.
//
// Concurrent first requests in one process share a single creation, which
// keeps running when the request that started it goes away. Across
// processes the profile store's compare-and-set keeps the first ledger id and
// the other ledger is left orphaned.
type LedgerProvisioner struct {
	ledgers  ledger.Store
	profiles profiles.Store
	inflight singleflight.Group
}

func NewLedgerProvisioner(ledgers ledger.Store, profiles profiles.Store) *LedgerProvisioner {
	return &LedgerProvisioner{ledgers: ledgers, profiles: profiles}
}

// LedgerFor returns the user's ledger id, provisioning one when the profile has none.
func (p *LedgerProvisioner) LedgerFor(ctx context.Context, user core.User) (string, error) {
	profile, err := p.profiles.EnsureUser(ctx, user)
	if err != nil {
		return "", fmt.Errorf("ensure profile: %w", err)
	}
	if profile.HasLedger() {
		return profile.LedgerID, nil
	}

	// The shared call outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := p.inflight.DoChan(user.ID, func() (interface{}, error) {
		return p.provision(context.WithoutCancel(ctx), user)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		if r.Shared {
			slog.DebugContext(ctx, "Ledger provisioning shared with a concurrent request", "user_id", user.ID)
		}
		return r.Val.(string), nil
	}
}

func (p *LedgerProvisioner) provision(ctx context.Context, user core.User) (string, error) {
	// Another request may have finished provisioning since the first lookup.
	profile, err := p.profiles.Get(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("reload profile: %w", err)
	}
	if profile.HasLedger() {
		return profile.LedgerID, nil
	}

	email := user.Email
	if email == "" {
		email = profile.Email
	}
	created, err := p.ledgers.CreateLedger(ctx, core.LedgerTitle(email))
	if err != nil {
		return "", fmt.Errorf("create ledger: %w", err)
	}

	stored, err := p.profiles.ClaimLedger(ctx, user.ID, created)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to persist new ledger id",
			"user_id", user.ID,
			"ledger_id", created,
			"error", err)
		return "", fmt.Errorf("claim ledger: %w", err)
	}
	if stored != created {
		slog.WarnContext(ctx, "Ledger already provisioned by another writer, new ledger orphaned",
			"user_id", user.ID,
			"kept_ledger_id", stored,
			"orphan_ledger_id", created)
		return stored, nil
	}

	slog.InfoContext(ctx, "Ledger provisioned", "user_id", user.ID, "ledger_id", created)
	return created, nil
}
