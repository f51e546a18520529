// Package http exposes the finance core over a thin JSON API.
//
// This file turns request bodies and query strings into core values. Parsing
// is lenient: anything that can be checked by the core is left to it, so the
// first failing field is reported in the core's order.
package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fynace/internal/core"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 1 << 20

// RequestBodyParser reads JSON or form-encoded bodies once and exposes their
// top-level fields as strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body as JSON when it looks like an object, as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]interface{})
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Get returns a trimmed, sanitized field value. Nested values read as "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Decode unmarshals the raw body into v. Used for payloads with a fixed shape.
func (p *RequestBodyParser) Decode(v interface{}) error {
	if p.err != nil {
		return p.err
	}
	if len(bytes.TrimSpace(p.body)) == 0 {
		return nil
	}
	return json.Unmarshal(p.body, v)
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// ParseDraft builds a transaction draft from descricao, valor, tipo, categoria
// and the optional data field. Only a present but unreadable date is rejected
// here; the rest is validated by the core.
func ParseDraft(p *RequestBodyParser) (core.Draft, error) {
	draft := core.Draft{
		Description: p.Get("descricao"),
		Category:    p.Get("categoria"),
	}
	if amount, ok := core.ParseAmount(p.Get("valor")); ok {
		draft.Amount = amount
	}
	if kind, err := core.ParseKind(p.Get("tipo")); err == nil {
		draft.Kind = kind
	} else {
		draft.Kind = core.Kind(strings.ToLower(p.Get("tipo")))
	}
	if raw := p.Get("data"); raw != "" {
		d, ok := core.ParseLedgerDate(raw)
		if !ok {
			return core.Draft{}, &core.ValidationError{Field: "data", Reason: "must be an ISO-8601 date or date-time"}
		}
		draft.Date = &d
	}
	return draft, nil
}

// ParseFilter reads categoria, tipo, inicio and fim from a listing query.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter
	f.Category = sanitizeInput(query.Get("categoria"))
	if raw := sanitizeInput(query.Get("tipo")); raw != "" {
		kind, err := core.ParseKind(raw)
		if err != nil {
			return core.Filter{}, err
		}
		f.Kind = kind
	}
	var err error
	if f.Start, err = parseBound(query, "inicio"); err != nil {
		return core.Filter{}, err
	}
	if f.End, err = parseBound(query, "fim"); err != nil {
		return core.Filter{}, err
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return core.Filter{}, &core.ValidationError{Field: "fim", Reason: "must not be before inicio"}
	}
	return f, nil
}

func parseBound(query url.Values, key string) (*time.Time, error) {
	raw := sanitizeInput(query.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, ok := core.ParseLedgerDate(raw)
	if !ok {
		return nil, &core.ValidationError{Field: key, Reason: "must be an ISO-8601 date or date-time"}
	}
	return &t, nil
}

// paymentRequest is the checkout body accepted by POST /pagamentos/criar.
type paymentRequest struct {
	Title             string          `json:"title"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	Email             string          `json:"email"`
	SuccessURL        string          `json:"success_url"`
	FailureURL        string          `json:"failure_url"`
	PendingURL        string          `json:"pending_url"`
	ExternalReference string          `json:"external_reference"`
}

func (p paymentRequest) toCore() core.PreferenceRequest {
	return core.PreferenceRequest{
		Title:             sanitizeInput(p.Title),
		UnitPrice:         p.UnitPrice,
		Quantity:          p.Quantity,
		Email:             strings.TrimSpace(p.Email),
		SuccessURL:        strings.TrimSpace(p.SuccessURL),
		FailureURL:        strings.TrimSpace(p.FailureURL),
		PendingURL:        strings.TrimSpace(p.PendingURL),
		ExternalReference: sanitizeInput(p.ExternalReference),
	}
}

// webhookPayload accepts the documented {topic, resource_id} body as well as
// the newer {type, data:{id}} notification shape.
type webhookPayload struct {
	Topic      string      `json:"topic"`
	ResourceID interface{} `json:"resource_id"`
	Type       string      `json:"type"`
	Data       struct {
		ID interface{} `json:"id"`
	} `json:"data"`
}

// ParseWebhookEvent reads the event from the body, then from the topic/id
// query parameters the payment backend also sends.
func ParseWebhookEvent(p *RequestBodyParser, query url.Values) (core.WebhookEvent, error) {
	var payload webhookPayload
	if err := p.Decode(&payload); err != nil {
		return core.WebhookEvent{}, &core.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}
	ev := core.WebhookEvent{
		Topic:      firstNonEmpty(payload.Topic, payload.Type, query.Get("topic"), query.Get("type")),
		ResourceID: firstNonEmpty(stringValue(payload.ResourceID), stringValue(payload.Data.ID), query.Get("id"), query.Get("data.id")),
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
