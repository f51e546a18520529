package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fynace/internal/core"
	"fynace/internal/profiles"
)

func TestLedgerProvisionerCreatesOnce(t *testing.T) {
	store := newFlakyStore()
	prof := profiles.NewMemoryStore()
	p := NewLedgerProvisioner(store, prof)
	user := core.User{ID: "u1", Email: "maria@example.com"}
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.LedgerFor(ctx, user)
			if err != nil {
				t.Errorf("ledger for: %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("requests saw different ledgers: %v", ids)
		}
	}
	if n := store.Count(); n != 1 {
		t.Errorf("provisioned %d ledgers, want 1", n)
	}
	if title := store.Title(ids[0]); title != "Fynace - Finanças de maria" {
		t.Errorf("title = %q", title)
	}
	profile, _ := prof.Get(ctx, "u1")
	if profile.LedgerID != ids[0] {
		t.Errorf("profile ledger = %q, want %q", profile.LedgerID, ids[0])
	}
}

// racingStore lets another writer claim the ledger while CreateLedger runs.
type racingStore struct {
	*flakyStore
	profiles profiles.Store
	userID   string
}

func (s *racingStore) CreateLedger(ctx context.Context, title string) (string, error) {
	winner, _ := s.flakyStore.CreateLedger(ctx, title)
	if _, err := s.profiles.ClaimLedger(ctx, s.userID, winner); err != nil {
		return "", err
	}
	return s.flakyStore.CreateLedger(ctx, title)
}

func TestLedgerProvisionerKeepsFirstClaim(t *testing.T) {
	prof := profiles.NewMemoryStore()
	store := &racingStore{flakyStore: newFlakyStore(), profiles: prof, userID: "u1"}
	p := NewLedgerProvisioner(store, prof)

	id, err := p.LedgerFor(context.Background(), core.User{ID: "u1", Email: "a@b"})
	if err != nil {
		t.Fatalf("ledger for: %v", err)
	}
	if id != "mem-1" {
		t.Errorf("expected the first claimed ledger, got %q", id)
	}
	if store.Count() != 2 {
		t.Errorf("expected an orphan ledger to exist, got %d ledgers", store.Count())
	}
}

func TestLedgerProvisionerReusesStoredLedger(t *testing.T) {
	store := newFlakyStore()
	prof := profiles.NewMemoryStore()
	ctx := context.Background()
	_, _ = prof.EnsureUser(ctx, core.User{ID: "u1"})
	_, _ = prof.ClaimLedger(ctx, "u1", "existing")

	store.createErr = errors.New("must not be called")
	id, err := NewLedgerProvisioner(store, prof).LedgerFor(ctx, core.User{ID: "u1"})
	if err != nil || id != "existing" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func TestLedgerProvisionerCreateFailure(t *testing.T) {
	store := newFlakyStore()
	store.createErr = errUnavailable
	prof := profiles.NewMemoryStore()

	_, err := NewLedgerProvisioner(store, prof).LedgerFor(context.Background(), core.User{ID: "u1"})
	if !errors.Is(err, core.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	p, _ := prof.Get(context.Background(), "u1")
	if p.HasLedger() {
		t.Errorf("failed provisioning must not persist a ledger id")
	}
}

// gatedStore blocks ledger creation until released and fails it when the
// context it was given is already done.
type gatedStore struct {
	*flakyStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) CreateLedger(ctx context.Context, title string) (string, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.flakyStore.CreateLedger(ctx, title)
}

func TestLedgerProvisionerSurvivesFirstCallerCancel(t *testing.T) {
	store := &gatedStore{flakyStore: newFlakyStore(), entered: make(chan struct{}), release: make(chan struct{})}
	p := NewLedgerProvisioner(store, profiles.NewMemoryStore())
	user := core.User{ID: "u1", Email: "maria@example.com"}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.LedgerFor(first, user)
		firstErr <- err
	}()
	<-store.entered
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v, want context.Canceled", err)
	}

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := p.LedgerFor(context.Background(), user)
		second <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	r := <-second
	if r.err != nil {
		t.Fatalf("live caller failed with the cancelled caller's context: %v", r.err)
	}
	if r.id == "" || store.Count() != 1 {
		t.Errorf("ledger id = %q, ledgers = %d", r.id, store.Count())
	}
}
