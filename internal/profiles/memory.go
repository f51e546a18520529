package profiles

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fynace/internal/core"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]core.Profile
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]core.Profile),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", userID, core.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) EnsureUser(_ context.Context, user core.User) (core.Profile, error) {
	if strings.TrimSpace(user.ID) == "" {
		return core.Profile{}, &core.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[user.ID]
	if !ok {
		now := s.now().UTC()
		p = core.Profile{
			UserID:    user.ID,
			Email:     user.Email,
			Plan:      core.PlanFree,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.profiles[user.ID] = p
		return p, nil
	}
	if p.Email == "" && user.Email != "" {
		p.Email = user.Email
		p.UpdatedAt = s.now().UTC()
		s.profiles[user.ID] = p
	}
	return p, nil
}

func (s *MemoryStore) ClaimLedger(_ context.Context, userID, ledgerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return "", fmt.Errorf("profile %s: %w", userID, core.ErrNotFound)
	}
	if p.HasLedger() {
		return p.LedgerID, nil
	}
	p.LedgerID = ledgerID
	p.UpdatedAt = s.now().UTC()
	s.profiles[userID] = p
	return ledgerID, nil
}

func (s *MemoryStore) ApplyPayment(_ context.Context, userID string, update core.PaymentUpdate) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	p, ok := s.profiles[userID]
	if !ok {
		p = core.Profile{UserID: userID, CreatedAt: now}
	}
	p.Plan = update.Plan
	p.PaymentStatus = update.PaymentStatus
	if update.PaymentID != "" {
		p.PaymentID = update.PaymentID
	}
	p.UpdatedAt = now
	s.profiles[userID] = p
	return p, nil
}
