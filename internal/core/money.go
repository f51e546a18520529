// Package core provides the ledger domain model.
//
// This file contains the tolerant amount parser used for cells read back from
// the spreadsheet and the strict one used for caller input.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount reads an unsigned decimal cell value.
//
// Both dot (12.34) and comma (12,34) separators are accepted. When both appear,
// the comma is the decimal separator and dots are thousands separators
// ("1.234,56"). Signs, exponents and any other character make the cell
// non-numeric and ok is false.
//
// Examples:
//
//	ParseAmount("450.5")    -> 450.5, true
//	ParseAmount("450,50")   -> 450.5, true
//	ParseAmount("1.234,56") -> 1234.56, true
//	ParseAmount("abc")      -> 0, false
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, false
	}
	digits := 0
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return decimal.Zero, false
			}
			digits++
		}
	}
	if digits == 0 {
		return decimal.Zero, false
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s = strings.TrimSuffix(s, ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParsePositiveAmount is ParseAmount restricted to values greater than zero.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, ok := ParseAmount(s)
	if !ok || !d.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "valor", Reason: "must be a number greater than zero"}
	}
	return d, nil
}
