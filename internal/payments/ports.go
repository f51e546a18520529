// Package payments defines the payment backend port used by reconciliation.
package payments

import (
	"context"

	"fynace/internal/core"
)

// Gateway is the payment backend. GetPayment is the authoritative source of a
// payment's status; webhook payloads are never trusted for it.
type Gateway interface {
	CreatePreference(ctx context.Context, req core.PreferenceRequest) (core.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (core.Payment, error)
}
