package amqp

import (
	"encoding/json"
	"time"

	"fynace/internal/core"
)

const MessageTypePlanChanged = "plan_changed"

// PlanChangedMessage announces that a user's plan was reconciled.
type PlanChangedMessage struct {
	Type          string    `json:"type"`
	UserID        string    `json:"user_id"`
	Plan          string    `json:"plan"`
	PaymentStatus string    `json:"payment_status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewPlanChangedMessage(c core.PlanChange) *PlanChangedMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &PlanChangedMessage{
		Type:          MessageTypePlanChanged,
		UserID:        c.UserID,
		Plan:          string(c.Plan),
		PaymentStatus: string(c.PaymentStatus),
		PaymentID:     c.PaymentID,
		Source:        c.Source,
		Timestamp:     ts,
	}
}

func (m *PlanChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
