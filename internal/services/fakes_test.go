package services

import (
	"context"
	"fmt"
	"sync"

	"fynace/internal/core"
	"fynace/internal/ledger/memory"
)

// flakyStore wraps the in-memory ledger with injectable failures.
type flakyStore struct {
	*memory.Store
	createErr error
	appendErr error
	readErr   error
	appends   int
	mu        sync.Mutex
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

func (s *flakyStore) CreateLedger(ctx context.Context, title string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	return s.Store.CreateLedger(ctx, title)
}

func (s *flakyStore) AppendRow(ctx context.Context, ledgerID, partition string, row []any) error {
	s.mu.Lock()
	s.appends++
	s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.AppendRow(ctx, ledgerID, partition, row)
}

func (s *flakyStore) ReadRange(ctx context.Context, ledgerID, partition, rng string) ([][]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.Store.ReadRange(ctx, ledgerID, partition, rng)
}

func (s *flakyStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

var errUnavailable = fmt.Errorf("dial tcp: connection refused: %w", core.ErrBackendUnavailable)

// fakeGateway serves payments from a map and records preference requests.
type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]core.Payment
	prefs    []core.PreferenceRequest
	err      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]core.Payment)}
}

func (g *fakeGateway) set(p core.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

func (g *fakeGateway) CreatePreference(_ context.Context, req core.PreferenceRequest) (core.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return core.Preference{}, g.err
	}
	g.prefs = append(g.prefs, req)
	id := fmt.Sprintf("pref-%d", len(g.prefs))
	return core.Preference{ID: id, InitPoint: "https://checkout/" + id, ExternalReference: req.ExternalReference}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (core.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return core.Payment{}, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return core.Payment{}, fmt.Errorf("payment %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

// recordingPublisher keeps every plan change it is handed.
type recordingPublisher struct {
	mu      sync.Mutex
	changes []core.PlanChange
	err     error
}

func (p *recordingPublisher) PublishPlanChange(_ context.Context, c core.PlanChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}
