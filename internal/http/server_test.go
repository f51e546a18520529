package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fynace/internal/auth"
	"fynace/internal/core"
	"fynace/internal/ledger/memory"
	"fynace/internal/log"
	"fynace/internal/payments"
	"fynace/internal/profiles"
	"fynace/internal/services"
)

const testSecret = "test-secret"

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]core.Payment
	created  []core.PreferenceRequest
}

func (g *fakeGateway) CreatePreference(_ context.Context, req core.PreferenceRequest) (core.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, req)
	return core.Preference{ID: "pref-1", InitPoint: "https://checkout.example/pref-1"}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (core.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return core.Payment{}, core.ErrNotFound
	}
	return p, nil
}

type testEnv struct {
	srv      *Server
	verifier *auth.Verifier
	gateway  *fakeGateway
}

func newTestEnv(t *testing.T, withGateway bool, rateLimit int) *testEnv {
	t.Helper()
	env := &testEnv{
		verifier: auth.NewVerifier(testSecret, "authenticated"),
		gateway:  &fakeGateway{payments: make(map[string]core.Payment)},
	}
	var gw payments.Gateway
	if withGateway {
		gw = env.gateway
	}
	finance := services.NewFinance(memory.New(), profiles.NewMemoryStore(), gw, nil)
	env.srv = NewServer(":0", finance, env.verifier, Options{
		Logger:             log.Discard(),
		RateLimitPerMinute: rateLimit,
		PaymentsEnabled:    withGateway,
	})
	t.Cleanup(func() { _ = env.srv.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) token(t *testing.T, id string) string {
	t.Helper()
	tok, err := e.verifier.Sign(core.User{ID: id, Email: id + "@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, true, 60)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	rr := env.do(t, http.MethodGet, "/readyz", "", "")
	var ready struct {
		Checks map[string]interface{} `json:"checks"`
	}
	decodeBody(t, rr, &ready)
	if ready.Checks["payments"] != "ok" || ready.Checks["notifications"] != "not_configured" {
		t.Errorf("checks = %v", ready.Checks)
	}
}

func TestRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, true, 60)
	paths := []struct{ method, path string }{
		{http.MethodPost, "/transacoes"},
		{http.MethodGet, "/transacoes"},
		{http.MethodGet, "/resumo"},
		{http.MethodPost, "/pagamentos/criar"},
		{http.MethodGet, "/pagamentos/status/123"},
	}
	for _, p := range paths {
		rr := env.do(t, p.method, p.path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status=%d, want 401", p.method, p.path, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("%s %s missing WWW-Authenticate", p.method, p.path)
		}
	}

	rr := env.do(t, http.MethodGet, "/resumo", "not-a-jwt", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status=%d", rr.Code)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, false, 60)
	tok := env.token(t, "maria")

	cases := []struct{ body, field string }{
		{`{"valor":10,"tipo":"despesa","categoria":"c"}`, "descricao"},
		{`{"descricao":"a","valor":0,"tipo":"despesa","categoria":"c"}`, "valor"},
		{`{"descricao":"a","valor":10,"tipo":"transfer","categoria":"c"}`, "tipo"},
		{`{"descricao":"a","valor":10,"tipo":"ganho"}`, "categoria"},
		{`{"descricao":"a","valor":10,"tipo":"ganho","categoria":"c","data":"x"}`, "data"},
		{`{"descricao":`, "body"},
	}
	for _, c := range cases {
		body, field := c.body, c.field
		rr := env.do(t, http.MethodPost, "/transacoes", tok, body)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status=%d, want 422", body, rr.Code)
			continue
		}
		var eb errorBody
		decodeBody(t, rr, &eb)
		if eb.Field != field {
			t.Errorf("%s: field=%q, want %q", body, eb.Field, field)
		}
	}
}

func TestTransactionsAndSummary(t *testing.T) {
	env := newTestEnv(t, false, 60)
	tok := env.token(t, "maria")

	bodies := []string{
		`{"descricao":"Salário","valor":3000,"tipo":"ganho","categoria":"Trabalho","data":"2024-01-05"}`,
		`{"descricao":"Mercado","valor":"450,50","tipo":"despesa","categoria":"Alimentação","data":"2024-01-10"}`,
	}
	for _, b := range bodies {
		rr := env.do(t, http.MethodPost, "/transacoes", tok, b)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	rr := env.do(t, http.MethodGet, "/transacoes?tipo=despesa", tok, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	var list []transactionJSON
	decodeBody(t, rr, &list)
	if len(list) != 1 || list[0].Descricao != "Mercado" || list[0].Valor.String() != "450.5" {
		t.Errorf("filtered list = %+v", list)
	}

	rr = env.do(t, http.MethodGet, "/resumo", tok, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status=%d", rr.Code)
	}
	var sum summaryJSON
	decodeBody(t, rr, &sum)
	if sum.TotalGanhos.String() != "3000" || sum.TotalDespesas.String() != "450.5" || sum.Saldo.String() != "2549.5" {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Detalhes) != 2 {
		t.Errorf("breakdown = %+v", sum.Detalhes)
	}

	// Another user sees an empty ledger, never null.
	rr = env.do(t, http.MethodGet, "/transacoes", env.token(t, "joao"), "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("other user's list = %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/metrics", "", "")
	if !strings.Contains(rr.Body.String(), "transactions_created_total 2") {
		t.Errorf("metrics missing created counter:\n%s", rr.Body.String())
	}
}

func TestListRejectsBadFilter(t *testing.T) {
	env := newTestEnv(t, false, 60)
	rr := env.do(t, http.MethodGet, "/transacoes?inicio=2024-02-01&fim=2024-01-01", env.token(t, "maria"), "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t, true, 60)
	tok := env.token(t, "maria")

	rr := env.do(t, http.MethodPost, "/pagamentos/criar", tok, `{"unit_price":19.9,"email":"maria@example.com","external_reference":"anual"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var pref preferenceJSON
	decodeBody(t, rr, &pref)
	if pref.ID != "pref-1" || pref.ExternalReference != "maria-anual" || pref.Status != core.StatusInitiated {
		t.Errorf("preference = %+v", pref)
	}

	rr = env.do(t, http.MethodPost, "/pagamentos/criar", tok, `{"unit_price":19.9,"email":"someone@else.com"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("email mismatch status=%d, want 422", rr.Code)
	}
}

func TestPaymentsDisabledWithoutGateway(t *testing.T) {
	env := newTestEnv(t, false, 60)
	rr := env.do(t, http.MethodPost, "/pagamentos/criar", env.token(t, "maria"), `{"unit_price":10,"email":"maria@example.com"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestWebhookAndStatus(t *testing.T) {
	env := newTestEnv(t, true, 60)
	env.gateway.payments["111"] = core.Payment{ID: "111", Status: core.StatusApproved, ExternalReference: "maria-anual"}
	env.gateway.payments["222"] = core.Payment{ID: "222", Status: core.StatusApproved, ExternalReference: "joao-anual"}

	rr := env.do(t, http.MethodPost, "/pagamentos/webhook", "", `{"topic":"merchant_order","resource_id":"1"}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ignored"`) {
		t.Fatalf("ignored topic: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/pagamentos/webhook", "", `{"type":"payment","data":{"id":111}}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"success"`) {
		t.Fatalf("payment webhook: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/pagamentos/webhook", "", `{"topic":"payment"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing resource id status=%d, want 422", rr.Code)
	}

	tok := env.token(t, "maria")
	rr = env.do(t, http.MethodGet, "/pagamentos/status/111", tok, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status query=%d body=%s", rr.Code, rr.Body.String())
	}
	var st paymentStatusJSON
	decodeBody(t, rr, &st)
	if st.Plan != core.PlanPremium || st.Status != core.StatusApproved {
		t.Errorf("status = %+v", st)
	}

	rr = env.do(t, http.MethodGet, "/pagamentos/status/222", tok, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("foreign payment status=%d, want 403", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/pagamentos/status/999", tok, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown payment status=%d, want 404", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, false, 2)
	tok := env.token(t, "maria")
	body := `{"descricao":"a","valor":1,"tipo":"ganho","categoria":"c"}`

	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodPost, "/transacoes", tok, body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/transacoes", tok, body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Reads are not limited.
	if rr := env.do(t, http.MethodGet, "/transacoes", tok, ""); rr.Code != http.StatusOK {
		t.Errorf("list status=%d", rr.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t, false, 60)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}

	rr = env.do(t, http.MethodGet, "/healthz", "", "")
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("generated request id = %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t, false, 60)
	if rr := env.do(t, http.MethodGet, "/nope", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/transacoes", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status=%d", rr.Code)
	}
}
