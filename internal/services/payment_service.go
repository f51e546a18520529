package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fynace/internal/core"
	"fynace/internal/payments"
	"fynace/internal/profiles"
)

const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"

	defaultPlanTitle = "Premium Plan"
)

var errNoGateway = fmt.Errorf("payment backend not configured: %w", core.ErrBackendUnavailable)

// PlanPublisher is notified after a payment state is persisted.
type PlanPublisher interface {
	PublishPlanChange(ctx context.Context, change core.PlanChange) error
}

// PaymentService maps payment backend state onto user plans. Both the webhook
// and the polled path go through the same rule, core.PlanFor.
type PaymentService struct {
	gateway   payments.Gateway
	profiles  profiles.Store
	publisher PlanPublisher
	now       func() time.Time
}

func NewPaymentService(gateway payments.Gateway, profiles profiles.Store, publisher PlanPublisher) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		profiles:  profiles,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreatePreference opens a checkout for the caller and marks the profile as initiated.
func (s *PaymentService) CreatePreference(ctx context.Context, user core.User, req core.PreferenceRequest) (core.Preference, error) {
	if s.gateway == nil {
		return core.Preference{}, errNoGateway
	}
	if !strings.EqualFold(strings.TrimSpace(req.Email), strings.TrimSpace(user.Email)) {
		return core.Preference{}, &core.ValidationError{Field: "email", Reason: "must match the authenticated user's email"}
	}
	if !req.UnitPrice.IsPositive() {
		return core.Preference{}, &core.ValidationError{Field: "unit_price", Reason: "must be greater than zero"}
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = defaultPlanTitle
	}
	callerRef := strings.TrimSpace(req.ExternalReference)
	if callerRef == "" {
		callerRef = uuid.NewString()
	}
	req.ExternalReference = core.ExternalReference(user.ID, callerRef)

	pref, err := s.gateway.CreatePreference(ctx, req)
	if err != nil {
		return core.Preference{}, err
	}

	_, err = s.profiles.ApplyPayment(ctx, user.ID, core.PaymentUpdate{
		Plan:          core.PlanFree,
		PaymentStatus: core.StatusInitiated,
		PaymentID:     pref.ID,
	})
	if err != nil {
		return core.Preference{}, fmt.Errorf("record initiated payment: %w", err)
	}
	pref.ExternalReference = req.ExternalReference
	pref.Status = core.StatusInitiated
	return pref, nil
}

// ReconcileWebhook applies the authoritative status of the payment an event
// points at. Events for other topics are acknowledged without effect.
func (s *PaymentService) ReconcileWebhook(ctx context.Context, ev core.WebhookEvent) (core.WebhookResult, error) {
	topic := strings.TrimSpace(ev.Topic)
	resourceID := strings.TrimSpace(ev.ResourceID)
	if topic == "" {
		return core.WebhookResult{}, &core.ValidationError{Field: "topic", Reason: "must not be empty"}
	}
	if resourceID == "" {
		return core.WebhookResult{}, &core.ValidationError{Field: "resource_id", Reason: "must not be empty"}
	}
	if topic != core.TopicPayment {
		slog.InfoContext(ctx, "Ignoring webhook topic", "topic", topic, "resource_id", resourceID)
		return core.WebhookResult{Accepted: false}, nil
	}
	if s.gateway == nil {
		return core.WebhookResult{}, errNoGateway
	}

	payment, err := s.gateway.GetPayment(ctx, resourceID)
	if err != nil {
		return core.WebhookResult{}, err
	}
	if payment.ExternalReference == "" {
		slog.WarnContext(ctx, "Payment has no external reference", "payment_id", payment.ID)
		return core.WebhookResult{}, fmt.Errorf("payment %s: %w", payment.ID, core.ErrMissingReference)
	}

	userID := core.OwnerFromExternalReference(payment.ExternalReference)
	if strings.TrimSpace(userID) == "" {
		slog.WarnContext(ctx, "Payment reference names no user",
			"payment_id", payment.ID,
			"external_reference", payment.ExternalReference)
		return core.WebhookResult{}, fmt.Errorf("payment %s: blank owner in %q: %w", payment.ID, payment.ExternalReference, core.ErrMissingReference)
	}
	plan, err := s.apply(ctx, userID, payment, SourceWebhook)
	if err != nil {
		return core.WebhookResult{}, err
	}
	return core.WebhookResult{
		Accepted: true,
		UserID:   userID,
		Status:   payment.Status,
		Plan:     plan,
	}, nil
}

// PaymentStatus fetches a payment for its owner and applies its status.
// A caller asking about someone else's payment gets core.ErrForbidden and
// nothing is written.
func (s *PaymentService) PaymentStatus(ctx context.Context, user core.User, paymentID string) (core.PaymentStatusResult, error) {
	if strings.TrimSpace(paymentID) == "" {
		return core.PaymentStatusResult{}, &core.ValidationError{Field: "payment_id", Reason: "must not be empty"}
	}
	if s.gateway == nil {
		return core.PaymentStatusResult{}, errNoGateway
	}
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return core.PaymentStatusResult{}, err
	}
	owner := core.OwnerFromExternalReference(payment.ExternalReference)
	if owner != user.ID {
		slog.WarnContext(ctx, "Payment status requested by non-owner",
			"user_id", user.ID,
			"payment_id", paymentID)
		return core.PaymentStatusResult{}, fmt.Errorf("payment %s: %w", paymentID, core.ErrForbidden)
	}

	plan, err := s.apply(ctx, user.ID, payment, SourcePoll)
	if err != nil {
		return core.PaymentStatusResult{}, err
	}
	return core.PaymentStatusResult{
		PaymentID:         paymentID,
		Status:            payment.Status,
		Plan:              plan,
		ExternalReference: payment.ExternalReference,
	}, nil
}

func (s *PaymentService) apply(ctx context.Context, userID string, payment core.Payment, source string) (core.Plan, error) {
	plan := core.PlanFor(payment.Status)
	_, err := s.profiles.ApplyPayment(ctx, userID, core.PaymentUpdate{
		Plan:          plan,
		PaymentStatus: payment.Status,
		PaymentID:     payment.ID,
	})
	if err != nil {
		return "", fmt.Errorf("apply payment %s: %w", payment.ID, err)
	}
	slog.InfoContext(ctx, "Payment reconciled",
		"user_id", userID,
		"payment_id", payment.ID,
		"status", payment.Status,
		"plan", plan,
		"source", source)

	s.publish(ctx, core.PlanChange{
		UserID:        userID,
		Plan:          plan,
		PaymentStatus: payment.Status,
		PaymentID:     payment.ID,
		Source:        source,
		At:            s.now().UTC(),
	})
	return plan, nil
}

// publish never fails the reconciliation; the profile is already saved.
func (s *PaymentService) publish(ctx context.Context, change core.PlanChange) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Plan publisher not configured, skipping notification")
		return
	}
	if err := s.publisher.PublishPlanChange(ctx, change); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Failed to publish plan change",
			"user_id", change.UserID,
			"payment_id", change.PaymentID,
			"error", err)
	}
}
