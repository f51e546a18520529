package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

const (
	StatusInitiated   PaymentStatus = "initiated"
	StatusApproved    PaymentStatus = "approved"
	StatusPending     PaymentStatus = "pending"
	StatusInProcess   PaymentStatus = "in_process"
	StatusCancelled   PaymentStatus = "cancelled"
	StatusRefunded    PaymentStatus = "refunded"
	StatusChargedBack PaymentStatus = "charged_back"
)

// TopicPayment is the only webhook topic that drives plan transitions.
const TopicPayment = "payment"

type (
	// Plan is the subscription tier.
	Plan string

	// PaymentStatus is the payment backend's status string, kept verbatim.
	PaymentStatus string

	// Payment is the authoritative view fetched from the payment backend.
	Payment struct {
		ID                string
		Status            PaymentStatus
		ExternalReference string
	}

	// PreferenceRequest is a caller's checkout request.
	PreferenceRequest struct {
		Title             string
		UnitPrice         decimal.Decimal
		Quantity          int
		Email             string
		SuccessURL        string
		FailureURL        string
		PendingURL        string
		ExternalReference string
	}

	// Preference is a checkout session created on the payment backend.
	Preference struct {
		ID                string
		InitPoint         string
		ExternalReference string
		Status            PaymentStatus
	}

	// WebhookEvent is an inbound notification; it carries no payment state itself.
	WebhookEvent struct {
		Topic      string
		ResourceID string
	}

	// WebhookResult reports whether an event led to a reconciliation.
	WebhookResult struct {
		Accepted bool
		UserID   string
		Status   PaymentStatus
		Plan     Plan
	}

	// PaymentStatusResult answers a polled status query.
	PaymentStatusResult struct {
		PaymentID         string
		Status            PaymentStatus
		Plan              Plan
		ExternalReference string
	}

	// PlanChange is emitted after a reconciliation is persisted.
	PlanChange struct {
		UserID        string
		Plan          Plan
		PaymentStatus PaymentStatus
		PaymentID     string
		Source        string
		At            time.Time
	}
)

// PlanFor maps the latest known payment status to a plan. Only an approved
// payment grants premium; every other status, known or not, yields free.
func PlanFor(status PaymentStatus) Plan {
	if status == StatusApproved {
		return PlanPremium
	}
	return PlanFree
}

// ExternalReference builds "{user_id}-{caller_reference}".
func ExternalReference(userID, callerReference string) string {
	return userID + "-" + callerReference
}

// OwnerFromExternalReference returns the text before the first "-", or the
// whole reference when it has none.
func OwnerFromExternalReference(ref string) string {
	if i := strings.Index(ref, "-"); i >= 0 {
		return ref[:i]
	}
	return ref
}
