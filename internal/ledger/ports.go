// Package ledger owns the layout contract of a spreadsheet-backed ledger and
// the codec between transactions and untyped rows.
package ledger

import (
	"context"

	"fynace/internal/core"
)

// Partition names inside a ledger container.
const (
	PartitionExpenses = "Despesas"
	PartitionIncomes  = "Ganhos"
	PartitionSummary  = "Resumo"
)

const (
	// HeaderRange is where the header row of a transactional partition lives.
	HeaderRange = "A1:E1"
	// AppendRange is the table the backend appends rows to.
	AppendRange = "A:E"
	// DataRange covers every data row, excluding the header.
	DataRange = "A2:E"
)

// Header is the first row of each transactional partition.
var Header = []any{"Data", "Descrição", "Categoria", "Valor", "Tipo"}

// Partitions lists every partition created with a ledger.
var Partitions = []string{PartitionExpenses, PartitionIncomes, PartitionSummary}

// TransactionalPartitions are the partitions holding rows, in read order.
var TransactionalPartitions = []string{PartitionExpenses, PartitionIncomes}

// Store is the remote row-store protocol.
//
// Implementations return errors matching core.ErrBackendUnavailable on
// transport failures and core.ErrNotFound when the ledger or partition is gone.
type Store interface {
	// CreateLedger provisions a container with every partition and header.
	CreateLedger(ctx context.Context, title string) (ledgerID string, err error)
	// AppendRow appends one row. A retried append may duplicate it.
	AppendRow(ctx context.Context, ledgerID, partition string, row []any) error
	// ReadRange re-fetches a range on every call; cells come back as text.
	ReadRange(ctx context.Context, ledgerID, partition, rng string) ([][]string, error)
}

// PartitionFor maps a kind to the partition its rows are appended to.
func PartitionFor(k core.Kind) string {
	if k == core.KindIncome {
		return PartitionIncomes
	}
	return PartitionExpenses
}

// KindOf is the inverse of PartitionFor for transactional partitions.
func KindOf(partition string) (core.Kind, bool) {
	switch partition {
	case PartitionExpenses:
		return core.KindExpense, true
	case PartitionIncomes:
		return core.KindIncome, true
	default:
		return "", false
	}
}
