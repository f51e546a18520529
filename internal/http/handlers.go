package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"fynace/internal/auth"
	"fynace/internal/core"
	"fynace/internal/log"
)

// currentUser is set by the authenticated middleware on every route that
// reads it.
func currentUser(r *http.Request) core.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		writeError(w, r, log.OpCreateTransaction, &core.ValidationError{Field: "body", Reason: "must be JSON or form encoded"})
		return
	}
	draft, err := ParseDraft(parser)
	if err != nil {
		writeError(w, r, log.OpCreateTransaction, err)
		return
	}

	user := currentUser(r)
	tx, err := s.finance.CreateTransaction(r.Context(), user, draft)
	if err != nil {
		writeError(w, r, log.OpCreateTransaction, err)
		return
	}
	atomic.AddInt64(&s.created, 1)
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogTransactionCreated(r.Context(), user.ID, tx.Category, string(tx.Kind), tx.Amount.String())

	NewJSONResponse().Status(http.StatusCreated).Body(struct {
		Message   string          `json:"message"`
		Transacao transactionJSON `json:"transacao"`
	}{
		Message:   "Transação salva com sucesso",
		Transacao: transactionFromCore(tx),
	}).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpListTransactions, err)
		return
	}
	entries, err := s.finance.ListTransactions(r.Context(), currentUser(r), filter)
	if err != nil {
		writeError(w, r, log.OpListTransactions, err)
		return
	}
	out := make([]transactionJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryFromCore(e))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := s.finance.GetSummary(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Body(summaryFromCore(report)).Write(w)
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	var req paymentRequest
	if err := parser.Decode(&req); err != nil {
		writeError(w, r, log.OpCreatePayment, &core.ValidationError{Field: "body", Reason: "must be a JSON payment request"})
		return
	}
	pref, err := s.finance.CreatePayment(r.Context(), currentUser(r), req.toCore())
	if err != nil {
		writeError(w, r, log.OpCreatePayment, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(preferenceJSON{
		ID:                pref.ID,
		InitPoint:         pref.InitPoint,
		ExternalReference: pref.ExternalReference,
		Status:            pref.Status,
	}).Write(w)
}

// handleWebhook is unauthenticated: the event carries no state, the payment
// is always re-fetched from the backend.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := ParseWebhookEvent(NewRequestBodyParser(r), r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpWebhook, err)
		return
	}
	res, err := s.finance.ReconcilePaymentWebhook(r.Context(), ev)
	if err != nil {
		writeError(w, r, log.OpWebhook, err)
		return
	}
	if !res.Accepted {
		NewJSONResponse().Body(map[string]string{
			"status":  "ignored",
			"message": fmt.Sprintf("topic %q is not reconciled", ev.Topic),
		}).Write(w)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogPlanReconciled(r.Context(), res.UserID, ev.ResourceID, string(res.Status), string(res.Plan), log.OpWebhook)
	NewJSONResponse().Body(map[string]string{
		"status":  "success",
		"message": "Webhook processed successfully",
	}).Write(w)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	res, err := s.finance.GetPaymentStatus(r.Context(), user, r.PathValue("payment_id"))
	if err != nil {
		writeError(w, r, log.OpPaymentStatus, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogPlanReconciled(r.Context(), user.ID, res.PaymentID, string(res.Status), string(res.Plan), log.OpPaymentStatus)
	NewJSONResponse().Body(paymentStatusJSON{
		PaymentID:         res.PaymentID,
		Status:            res.Status,
		Plan:              res.Plan,
		ExternalReference: res.ExternalReference,
	}).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports which optional integrations are wired. The service is
// ready as soon as it serves; integrations only degrade features.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := func(on bool) string {
		if on {
			return "ok"
		}
		return "not_configured"
	}
	NewJSONResponse().Body(map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]interface{}{
			"payments":      status(s.opts.PaymentsEnabled),
			"notifications": status(s.opts.NotificationsEnabled),
			"rate_limiter": map[string]interface{}{
				"active_clients": s.limiter.GetMetrics().ClientCount,
				"status":         "ok",
			},
		},
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	rl := s.limiter.GetMetrics()

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", s.tracer.TotalRequests())

	fmt.Fprintf(w, "# HELP transactions_created_total Transactions appended through the API\n")
	fmt.Fprintf(w, "# TYPE transactions_created_total counter\n")
	fmt.Fprintf(w, "transactions_created_total %d\n\n", atomic.LoadInt64(&s.created))

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rl.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rl.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Requests flagged as probes\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.detector.SuspiciousCount())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}
