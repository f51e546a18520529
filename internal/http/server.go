package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fynace/internal/auth"
	"fynace/internal/core"
	"fynace/internal/log"
	"fynace/internal/middleware/ratelimit"
	"fynace/internal/middleware/security"
	"fynace/internal/middleware/trace"
)

// Finance is the core surface the API exposes.
type Finance interface {
	CreateTransaction(ctx context.Context, user core.User, draft core.Draft) (core.Transaction, error)
	ListTransactions(ctx context.Context, user core.User, filter core.Filter) ([]core.Entry, error)
	GetSummary(ctx context.Context, user core.User) (core.Report, error)
	CreatePayment(ctx context.Context, user core.User, req core.PreferenceRequest) (core.Preference, error)
	ReconcilePaymentWebhook(ctx context.Context, ev core.WebhookEvent) (core.WebhookResult, error)
	GetPaymentStatus(ctx context.Context, user core.User, paymentID string) (core.PaymentStatusResult, error)
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (core.User, error)
}

// Options tune the server. Zero values get defaults.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	// Integrations reported by /readyz.
	PaymentsEnabled      bool
	NotificationsEnabled bool
}

type Server struct {
	http.Server
	finance  Finance
	auth     Authenticator
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	opts     Options
	started  time.Time
	created  int64

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, finance Finance, authn Authenticator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		finance:  finance,
		auth:     authn,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ClientIP),
		opts:     opts,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /transacoes", s.limited(s.authenticated(s.handleCreateTransaction)))
	mux.Handle("GET /transacoes", s.authenticated(s.handleListTransactions))
	mux.Handle("GET /resumo", s.authenticated(s.handleSummary))

	mux.Handle("POST /pagamentos/criar", s.limited(s.authenticated(s.handleCreatePayment)))
	mux.Handle("POST /pagamentos/webhook", s.limited(http.HandlerFunc(s.handleWebhook)))
	mux.Handle("GET /pagamentos/status/{payment_id}", s.authenticated(s.handlePaymentStatus))

	var handler http.Handler = mux
	handler = s.flagSuspicious(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the limiter's cleanup goroutine and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// authenticated resolves the caller and stores it on the request context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, r, r.Method+" "+r.URL.Path, err)
			return
		}
		ctx := log.WithLogger(r.Context(), log.FromContext(r.Context()).With(log.FieldUserID, user.ID))
		next(w, r.WithContext(auth.WithUser(ctx, user)))
	})
}

// limited applies the per-client limit to mutating routes.
func (s *Server) limited(next http.Handler) http.Handler {
	return s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})(next)
}

// flagSuspicious logs probe-looking requests; it never blocks them.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.Suspicious(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.detector.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
