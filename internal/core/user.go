package core

import (
	"strings"
	"time"
)

// User is the authenticated identity handed to the core.
type User struct {
	ID    string
	Email string
}

// Profile is the per-user record kept in the profile store.
type Profile struct {
	UserID        string
	Email         string
	LedgerID      string
	Plan          Plan
	PaymentStatus PaymentStatus
	PaymentID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PaymentUpdate is the last-write-wins set of payment fields.
type PaymentUpdate struct {
	Plan          Plan
	PaymentStatus PaymentStatus
	PaymentID     string
}

// HasLedger reports whether a ledger was already provisioned.
func (p Profile) HasLedger() bool {
	return strings.TrimSpace(p.LedgerID) != ""
}

// LedgerTitle names the spreadsheet provisioned for a user.
func LedgerTitle(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	return "Fynace - Finanças de " + local
}
