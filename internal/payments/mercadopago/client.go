// Package mercadopago adapts the official Mercado Pago SDK to the payment
// gateway port.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"fynace/internal/core"
	"fynace/internal/payments"
)

const (
	DefaultBaseURL = "https://api.mercadopago.com"
	currencyBRL    = "BRL"
)

var _ payments.Gateway = (*Client)(nil)

type Config struct {
	AccessToken string
	// BaseURL replaces the SDK's API host, for sandboxes and tests.
	BaseURL string
	// NotificationURL is where the backend posts webhook events.
	NotificationURL string
	HTTPClient      *http.Client
}

type Client struct {
	preferences     preference.Client
	payments        payment.Client
	notificationURL string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("missing MERCADOPAGO_ACCESS_TOKEN")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := newRequester(cfg.BaseURL, hc)
	if err != nil {
		return nil, err
	}
	sdk, err := config.New(cfg.AccessToken, config.WithHTTPClient(req))
	if err != nil {
		return nil, fmt.Errorf("mercado pago config: %w", err)
	}
	return &Client{
		preferences:     preference.NewClient(sdk),
		payments:        payment.NewClient(sdk),
		notificationURL: cfg.NotificationURL,
	}, nil
}

// CreatePreference opens a checkout session for a single BRL item.
func (c *Client) CreatePreference(ctx context.Context, req core.PreferenceRequest) (core.Preference, error) {
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	body := preference.Request{
		Items: []preference.ItemRequest{{
			Title:      req.Title,
			Quantity:   qty,
			UnitPrice:  req.UnitPrice.InexactFloat64(),
			CurrencyID: currencyBRL,
		}},
		Payer: &preference.PayerRequest{Email: req.Email},
		BackURLs: &preference.BackURLsRequest{
			Success: req.SuccessURL,
			Failure: req.FailureURL,
			Pending: req.PendingURL,
		},
		ExternalReference: req.ExternalReference,
		NotificationURL:   c.notificationURL,
	}
	// auto_return is rejected by the API without a success URL.
	if req.SuccessURL != "" {
		body.AutoReturn = "approved"
	}

	resp, err := c.preferences.Create(ctx, body)
	if err != nil {
		return core.Preference{}, classify(ctx, "create preference", err)
	}
	slog.InfoContext(ctx, "Payment preference created",
		"preference_id", resp.ID,
		"external_reference", req.ExternalReference)

	ref := resp.ExternalReference
	if ref == "" {
		ref = req.ExternalReference
	}
	return core.Preference{
		ID:                resp.ID,
		InitPoint:         resp.InitPoint,
		ExternalReference: ref,
		Status:            core.StatusInitiated,
	}, nil
}

// GetPayment fetches the current state of a payment. Payment ids are numeric.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (core.Payment, error) {
	raw := strings.TrimSpace(paymentID)
	if raw == "" {
		return core.Payment{}, &core.ValidationError{Field: "payment_id", Reason: "must not be empty"}
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return core.Payment{}, &core.ValidationError{Field: "payment_id", Reason: "must be a positive number"}
	}

	resp, err := c.payments.Get(ctx, id)
	if err != nil {
		return core.Payment{}, classify(ctx, "get payment "+raw, err)
	}
	status := core.PaymentStatus(resp.Status)
	if status == "" {
		status = core.StatusPending
	}
	got := raw
	if resp.ID != 0 {
		got = strconv.Itoa(resp.ID)
	}
	return core.Payment{
		ID:                got,
		Status:            status,
		ExternalReference: strings.TrimSpace(resp.ExternalReference),
	}, nil
}

// classify maps SDK failures onto the core error taxonomy: 404 is NotFound,
// 400 is a validation failure, any other status or transport error means the
// backend is unavailable.
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var re *mperror.ResponseError
	if errors.As(err, &re) {
		switch re.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %s", op, core.ErrNotFound, re.Message)
		case http.StatusBadRequest:
			return fmt.Errorf("%s: %w: %s", op, core.ErrValidation, re.Message)
		default:
			return fmt.Errorf("%s: %w: status %d: %s", op, core.ErrBackendUnavailable, re.StatusCode, re.Message)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrBackendUnavailable, err)
}

// requester sends SDK requests through hc, pointing them at base when the
// API host is overridden.
type requester struct {
	base *url.URL
	hc   *http.Client
}

func newRequester(baseURL string, hc *http.Client) (*requester, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" || base == DefaultBaseURL {
		return &requester{hc: hc}, nil
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	return &requester{base: u, hc: hc}, nil
}

func (r *requester) Do(req *http.Request) (*http.Response, error) {
	if r.base != nil {
		req = req.Clone(req.Context())
		req.URL.Scheme = r.base.Scheme
		req.URL.Host = r.base.Host
		req.URL.Path = r.base.Path + req.URL.Path
		req.Host = r.base.Host
	}
	return r.hc.Do(req)
}
