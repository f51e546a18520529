package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fynace/internal/core"
	"fynace/internal/ledger"
)

// TransactionService validates, routes and queries the transactions of one ledger.
type TransactionService struct {
	store    ledger.Store
	ledgerID string
	now      func() time.Time
}

func NewTransactionService(store ledger.Store, ledgerID string) *TransactionService {
	return &TransactionService{
		store:    store,
		ledgerID: ledgerID,
		now:      time.Now,
	}
}

// Create validates the draft and appends it to the partition of its kind.
// Nothing is written when validation fails.
func (s *TransactionService) Create(ctx context.Context, d core.Draft) (core.Transaction, error) {
	tx, err := d.Finalize(s.now().UTC())
	if err != nil {
		return core.Transaction{}, err
	}
	partition := ledger.PartitionFor(tx.Kind)
	if err := s.store.AppendRow(ctx, s.ledgerID, partition, ledger.EncodeRow(tx)); err != nil {
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction appended",
		"ledger_id", s.ledgerID,
		"partition", partition,
		"category", tx.Category,
		"amount", tx.Amount.String())
	return tx, nil
}

// ListAll decodes every listable row of both partitions, expenses first.
// An unreachable partition contributes no rows.
func (s *TransactionService) ListAll(ctx context.Context) []core.Entry {
	rows := readTransactional(ctx, s.store, s.ledgerID)
	out := make([]core.Entry, 0, len(rows.expenses)+len(rows.incomes))
	out = append(out, ledger.FoldEntries(rows.expenses, core.KindExpense)...)
	out = append(out, ledger.FoldEntries(rows.incomes, core.KindIncome)...)
	return out
}

// List applies f over ListAll.
func (s *TransactionService) List(ctx context.Context, f core.Filter) []core.Entry {
	all := s.ListAll(ctx)
	out := make([]core.Entry, 0, len(all))
	for _, e := range all {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// FilterByCategory matches the category case-insensitively.
func (s *TransactionService) FilterByCategory(ctx context.Context, name string) []core.Entry {
	return s.List(ctx, core.Filter{Category: name})
}

func (s *TransactionService) FilterByKind(ctx context.Context, kind core.Kind) []core.Entry {
	return s.List(ctx, core.Filter{Kind: kind})
}

// FilterByDateRange keeps entries dated within [start, end]. Entries with an
// unparseable date are excluded.
func (s *TransactionService) FilterByDateRange(ctx context.Context, start, end time.Time) []core.Entry {
	return s.List(ctx, core.Filter{Start: &start, End: &end})
}

type partitionRows struct {
	expenses [][]string
	incomes  [][]string
}

// readTransactional fetches both transactional partitions concurrently. A
// failed read is logged and treated as an empty partition.
func readTransactional(ctx context.Context, store ledger.Store, ledgerID string) partitionRows {
	var out partitionRows
	var g errgroup.Group
	read := func(partition string, dst *[][]string) {
		g.Go(func() error {
			rows, err := store.ReadRange(ctx, ledgerID, partition, ledger.DataRange)
			if err != nil {
				slog.WarnContext(ctx, "Ledger read failed, treating partition as empty",
					"ledger_id", ledgerID,
					"partition", partition,
					"error", err)
				return nil
			}
			*dst = rows
			return nil
		})
	}
	read(ledger.PartitionExpenses, &out.expenses)
	read(ledger.PartitionIncomes, &out.incomes)
	_ = g.Wait()
	return out
}
