// Package memory is an in-process ledger.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fynace/internal/core"
	"fynace/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type container struct {
	title      string
	partitions map[string][][]string
}

type Store struct {
	mu      sync.Mutex
	seq     int
	ledgers map[string]*container
}

func New() *Store {
	return &Store{ledgers: make(map[string]*container)}
}

// CreateLedger creates every partition and writes the header rows.
func (s *Store) CreateLedger(_ context.Context, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("mem-%d", s.seq)
	c := &container{title: title, partitions: make(map[string][][]string)}
	for _, p := range ledger.Partitions {
		c.partitions[p] = nil
	}
	for _, p := range ledger.TransactionalPartitions {
		c.partitions[p] = [][]string{ledger.CellsText(ledger.Header)}
	}
	s.ledgers[id] = c
	return id, nil
}

// AppendRow stores the row as text, the way the remote store hands it back.
func (s *Store) AppendRow(_ context.Context, ledgerID, partition string, row []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.partition(ledgerID, partition)
	if err != nil {
		return err
	}
	s.ledgers[ledgerID].partitions[partition] = append(rows, ledger.CellsText(row))
	return nil
}

// ReadRange supports "A:E" and "A<n>:E" style ranges.
func (s *Store) ReadRange(_ context.Context, ledgerID, partition, rng string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.partition(ledgerID, partition)
	if err != nil {
		return nil, err
	}
	start := startRow(rng)
	if start > len(rows) {
		return [][]string{}, nil
	}
	out := make([][]string, 0, len(rows)-start+1)
	for _, r := range rows[start-1:] {
		out = append(out, append([]string(nil), r...))
	}
	return out, nil
}

// Title returns the title a ledger was created with.
func (s *Store) Title(ledgerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.ledgers[ledgerID]; ok {
		return c.title
	}
	return ""
}

// Count returns the number of provisioned ledgers.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledgers)
}

func (s *Store) partition(ledgerID, partition string) ([][]string, error) {
	c, ok := s.ledgers[ledgerID]
	if !ok {
		return nil, fmt.Errorf("ledger %s: %w", ledgerID, core.ErrNotFound)
	}
	rows, ok := c.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("partition %s!%s: %w", ledgerID, partition, core.ErrNotFound)
	}
	return rows, nil
}

// startRow extracts the 1-based first row of an A1 range, defaulting to 1.
func startRow(rng string) int {
	first, _, _ := strings.Cut(rng, ":")
	digits := strings.TrimLeftFunc(first, func(r rune) bool { return r < '0' || r > '9' })
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
