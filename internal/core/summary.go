package core

import "github.com/shopspring/decimal"

// FallbackCategory labels rows whose category cell is blank.
const FallbackCategory = "Outros"

// Summary is the amount-only fold over both partitions of a ledger.
type Summary struct {
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Balance      decimal.Decimal
}

// CategoryTotal is one (category, kind) group of a breakdown.
type CategoryTotal struct {
	Category string
	Kind     Kind
	Total    decimal.Decimal
}

// Report is what a dashboard renders: the summary plus its breakdown.
type Report struct {
	Summary
	Breakdown []CategoryTotal
}
