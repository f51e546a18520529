package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"fynace/internal/core"
)

const (
	colDate = iota
	colDescription
	colCategory
	colAmount
	colKind

	rowWidth = colKind + 1
)

// EncodeRow produces the fixed five column row for a transaction. The amount
// is written as a number so spreadsheet formulas keep working.
func EncodeRow(t core.Transaction) []any {
	return []any{
		t.Date.Format(core.DateLayout),
		t.Description,
		t.Category,
		t.Amount.InexactFloat64(),
		t.Kind.Label(),
	}
}

// DecodeEntry decodes a listing row. Rows shorter than five columns are
// reported as not ok; a non-numeric amount decodes as zero.
func DecodeEntry(row []string, kind core.Kind) (core.Entry, bool) {
	if len(row) < rowWidth {
		return core.Entry{}, false
	}
	amount, _ := core.ParseAmount(row[colAmount])
	return core.Entry{
		Date:        strings.TrimSpace(row[colDate]),
		Description: strings.TrimSpace(row[colDescription]),
		Category:    strings.TrimSpace(row[colCategory]),
		Amount:      amount,
		Kind:        kind,
	}, true
}

// Contribution is a row's share of an aggregation.
type Contribution struct {
	Category string
	Amount   decimal.Decimal
}

// DecodeContribution decodes a row for aggregation. Rows with fewer than four
// columns contribute nothing; non-numeric amounts contribute zero.
func DecodeContribution(row []string) (Contribution, bool) {
	if len(row) <= colAmount {
		return Contribution{}, false
	}
	amount, _ := core.ParseAmount(row[colAmount])
	category := strings.TrimSpace(row[colCategory])
	if category == "" {
		category = core.FallbackCategory
	}
	return Contribution{Category: category, Amount: amount}, true
}

// FoldEntries decodes every row best-effort, dropping the ones that do not decode.
func FoldEntries(rows [][]string, kind core.Kind) []core.Entry {
	out := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		if e, ok := DecodeEntry(row, kind); ok {
			out = append(out, e)
		}
	}
	return out
}

// SumAmounts folds the amount column of rows; undecodable rows add zero.
func SumAmounts(rows [][]string) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		if c, ok := DecodeContribution(row); ok {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// CellText renders a cell value the way it is compared and parsed. Floats are
// written without exponent so large amounts stay numeric.
func CellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// CellsText renders a whole row with CellText.
func CellsText(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = CellText(v)
	}
	return out
}
