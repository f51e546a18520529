package services

import (
	"context"

	"github.com/shopspring/decimal"

	"fynace/internal/core"
	"fynace/internal/ledger"
)

// AggregationEngine folds ledger rows into totals. Every call re-reads the ledger.
type AggregationEngine struct {
	store ledger.Store
}

func NewAggregationEngine(store ledger.Store) *AggregationEngine {
	return &AggregationEngine{store: store}
}

func (a *AggregationEngine) Summary(ctx context.Context, ledgerID string) core.Summary {
	rows := readTransactional(ctx, a.store, ledgerID)
	return Summarize(rows.expenses, rows.incomes)
}

func (a *AggregationEngine) CategoryBreakdown(ctx context.Context, ledgerID string) []core.CategoryTotal {
	rows := readTransactional(ctx, a.store, ledgerID)
	return Breakdown(rows.expenses, rows.incomes)
}

// Report computes the summary and the breakdown from a single read.
func (a *AggregationEngine) Report(ctx context.Context, ledgerID string) core.Report {
	rows := readTransactional(ctx, a.store, ledgerID)
	return Report(rows.expenses, rows.incomes)
}

// Report folds raw partitions into a report without touching a backend.
func Report(expenses, incomes [][]string) core.Report {
	return core.Report{
		Summary:   Summarize(expenses, incomes),
		Breakdown: Breakdown(expenses, incomes),
	}
}

// Summarize sums each partition's amount column. Undecodable rows add zero.
func Summarize(expenses, incomes [][]string) core.Summary {
	exp := ledger.SumAmounts(expenses)
	inc := ledger.SumAmounts(incomes)
	return core.Summary{
		TotalIncome:  inc,
		TotalExpense: exp,
		Balance:      inc.Sub(exp),
	}
}

type groupKey struct {
	category string
	kind     core.Kind
}

// Breakdown groups amounts by (category, kind). Categories keep the order in
// which they were first seen, expenses scanned before incomes, and only groups
// with a non-zero total are emitted.
func Breakdown(expenses, incomes [][]string) []core.CategoryTotal {
	totals := make(map[groupKey]decimal.Decimal)
	var categories []string
	seen := make(map[string]bool)

	fold := func(rows [][]string, kind core.Kind) {
		for _, row := range rows {
			c, ok := ledger.DecodeContribution(row)
			if !ok {
				continue
			}
			if !seen[c.Category] {
				seen[c.Category] = true
				categories = append(categories, c.Category)
			}
			k := groupKey{category: c.Category, kind: kind}
			totals[k] = totals[k].Add(c.Amount)
		}
	}
	fold(expenses, core.KindExpense)
	fold(incomes, core.KindIncome)

	out := make([]core.CategoryTotal, 0, len(totals))
	for _, cat := range categories {
		for _, kind := range []core.Kind{core.KindExpense, core.KindIncome} {
			total, ok := totals[groupKey{category: cat, kind: kind}]
			if !ok || total.IsZero() {
				continue
			}
			out = append(out, core.CategoryTotal{Category: cat, Kind: kind, Total: total})
		}
	}
	return out
}
