package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense Kind = "despesa"
	KindIncome  Kind = "ganho"
)

// Ledger amounts are stored as spreadsheet numbers, so they must fit the
// digits a float64 cell round-trips exactly.
const amountPlaces = 2

var maxAmount = decimal.New(1, 13)

type (
	// Kind carries the sign of a transaction; amounts are always positive.
	Kind string

	// Draft is a transaction as presented by a caller, before defaults are applied.
	Draft struct {
		Date        *time.Time
		Description string
		Category    string
		Amount      decimal.Decimal
		Kind        Kind
	}

	// Transaction is the immutable unit appended to a ledger.
	Transaction struct {
		Date        time.Time
		Description string
		Category    string
		Amount      decimal.Decimal
		Kind        Kind
	}

	// Entry is a transaction decoded from a ledger row. Date is kept as the raw
	// cell text because the backing store does not guarantee its shape.
	Entry struct {
		Date        string
		Description string
		Category    string
		Amount      decimal.Decimal
		Kind        Kind
	}

	// Filter narrows a listing. Zero fields do not filter.
	Filter struct {
		Category string
		Kind     Kind
		Start    *time.Time
		End      *time.Time
	}
)

// ParseKind accepts the ledger wire values and their English aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindExpense), "expense":
		return KindExpense, nil
	case string(KindIncome), "income":
		return KindIncome, nil
	default:
		return "", &ValidationError{Field: "tipo", Reason: fmt.Sprintf("unknown kind %q", s)}
	}
}

func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// Label returns the capitalised form stored in the ledger's kind column.
func (k Kind) Label() string {
	switch k {
	case KindExpense:
		return "Despesa"
	case KindIncome:
		return "Ganho"
	default:
		return ""
	}
}

// Validate checks the draft in a fixed order and reports the first failing field.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Description) == "" {
		return &ValidationError{Field: "descricao", Reason: "must not be blank"}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "valor", Reason: "must be greater than zero"}
	}
	if !d.Amount.Equal(d.Amount.Truncate(amountPlaces)) {
		return &ValidationError{Field: "valor", Reason: fmt.Sprintf("must have at most %d decimal places", amountPlaces)}
	}
	if d.Amount.GreaterThanOrEqual(maxAmount) {
		return &ValidationError{Field: "valor", Reason: "must be less than " + maxAmount.String()}
	}
	if !d.Kind.Valid() {
		return &ValidationError{Field: "tipo", Reason: fmt.Sprintf("must be %q or %q", KindExpense, KindIncome)}
	}
	if strings.TrimSpace(d.Category) == "" {
		return &ValidationError{Field: "categoria", Reason: "must not be blank"}
	}
	return nil
}

// Finalize validates the draft and fills the date with now when absent.
func (d Draft) Finalize(now time.Time) (Transaction, error) {
	if err := d.Validate(); err != nil {
		return Transaction{}, err
	}
	date := now
	if d.Date != nil && !d.Date.IsZero() {
		date = *d.Date
	}
	return Transaction{
		Date:        date,
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		Amount:      d.Amount,
		Kind:        d.Kind,
	}, nil
}

// ParsedDate parses the raw date cell, see ParseLedgerDate.
func (e Entry) ParsedDate() (time.Time, bool) {
	return ParseLedgerDate(e.Date)
}

// Match reports whether the entry passes every set field of the filter.
// Entries whose date cannot be parsed never match a date bound.
func (f Filter) Match(e Entry) bool {
	if f.Category != "" && !strings.EqualFold(strings.TrimSpace(e.Category), strings.TrimSpace(f.Category)) {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Start == nil && f.End == nil {
		return true
	}
	d, ok := e.ParsedDate()
	if !ok {
		return false
	}
	if f.Start != nil && d.Before(*f.Start) {
		return false
	}
	if f.End != nil && d.After(*f.End) {
		return false
	}
	return true
}
