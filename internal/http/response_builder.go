package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"fynace/internal/auth"
	"fynace/internal/core"
	"fynace/internal/log"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       interface{}
	headers    map[string]string
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v interface{}) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// classifyError maps a core or auth error to its status code, the message the
// caller may see and the log error type.
func classifyError(err error) (int, errorBody, string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorBody{Error: verr.Error(), Field: verr.Field}, log.ErrorTypeValidation
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error()}, log.ErrorTypeValidation
	case errors.Is(err, core.ErrMissingReference):
		return http.StatusUnprocessableEntity, errorBody{Error: "payment has no external reference"}, log.ErrorTypeValidation
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Error: "authentication required"}, log.ErrorTypeAuth
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "you don't have permission to access this payment"}, log.ErrorTypeForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}, log.ErrorTypeNotFound
	case errors.Is(err, core.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "backend unavailable, try again later"}, log.ErrorTypeUnavailable
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}, log.ErrorTypeInternal
	}
}

// writeError logs err against op and writes its classified response. Causes
// of server-side failures never reach the body.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body, errType := classifyError(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields()
	if u, ok := auth.UserFromContext(r.Context()); ok {
		fields = fields.WithUser(u.ID)
	}
	log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, errType, op, fields)

	b := NewJSONResponse().Status(status).Body(body)
	if status == http.StatusUnauthorized {
		b.Header("WWW-Authenticate", `Bearer realm="fynace"`)
	}
	if status == http.StatusServiceUnavailable {
		b.Header("Retry-After", "30")
	}
	b.Write(w)
}

// number renders a decimal as a JSON number rather than a quoted string.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type transactionJSON struct {
	Data      string      `json:"data"`
	Descricao string      `json:"descricao"`
	Categoria string      `json:"categoria"`
	Valor     json.Number `json:"valor"`
	Tipo      core.Kind   `json:"tipo"`
}

func transactionFromCore(t core.Transaction) transactionJSON {
	return transactionJSON{
		Data:      t.Date.Format(core.DateLayout),
		Descricao: t.Description,
		Categoria: t.Category,
		Valor:     number(t.Amount),
		Tipo:      t.Kind,
	}
}

func entryFromCore(e core.Entry) transactionJSON {
	return transactionJSON{
		Data:      e.Date,
		Descricao: e.Description,
		Categoria: e.Category,
		Valor:     number(e.Amount),
		Tipo:      e.Kind,
	}
}

type breakdownJSON struct {
	Categoria string      `json:"Categoria"`
	Tipo      string      `json:"Tipo"`
	Valor     json.Number `json:"Valor"`
}

type summaryJSON struct {
	TotalGanhos   json.Number     `json:"total_ganhos"`
	TotalDespesas json.Number     `json:"total_despesas"`
	Saldo         json.Number     `json:"saldo"`
	Detalhes      []breakdownJSON `json:"detalhes"`
}

func summaryFromCore(r core.Report) summaryJSON {
	out := summaryJSON{
		TotalGanhos:   number(r.TotalIncome),
		TotalDespesas: number(r.TotalExpense),
		Saldo:         number(r.Balance),
		Detalhes:      make([]breakdownJSON, 0, len(r.Breakdown)),
	}
	for _, c := range r.Breakdown {
		out.Detalhes = append(out.Detalhes, breakdownJSON{
			Categoria: c.Category,
			Tipo:      c.Kind.Label(),
			Valor:     number(c.Total),
		})
	}
	return out
}

type preferenceJSON struct {
	ID                string             `json:"id"`
	InitPoint         string             `json:"init_point"`
	ExternalReference string             `json:"external_reference"`
	Status            core.PaymentStatus `json:"status"`
}

type paymentStatusJSON struct {
	PaymentID         string             `json:"payment_id"`
	Status            core.PaymentStatus `json:"status"`
	Plan              core.Plan          `json:"plan"`
	ExternalReference string             `json:"external_reference"`
}
