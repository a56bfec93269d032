// Package http exposes the month, template and payment source services as a
// JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
)

// MonthManager is the month lifecycle surface the API drives.
type MonthManager interface {
	ListMonths(ctx context.Context) ([]core.Month, error)
	GetMonth(ctx context.Context, month core.Month) (*core.MonthlyDocument, error)
	GenerateMonth(ctx context.Context, month core.Month) (*core.MonthlyDocument, error)
	SyncMonth(ctx context.Context, month core.Month) (*core.MonthlyDocument, int, error)
	EnsureMonth(ctx context.Context, month core.Month) (services.EnsureResult, error)
	DeleteMonth(ctx context.Context, month core.Month) error
	CloseOccurrence(ctx context.Context, month core.Month, instanceID, occurrenceID string, req services.CloseRequest) (core.Occurrence, error)
	ReopenOccurrence(ctx context.Context, month core.Month, instanceID, occurrenceID string) (core.Occurrence, error)
	SplitOccurrence(ctx context.Context, month core.Month, instanceID, occurrenceID string, req services.SplitRequest) (services.SplitResult, error)
	ApplyPayment(ctx context.Context, month core.Month, instanceID, occurrenceID string, p core.Payment) (core.Occurrence, error)
}

type TemplateManager interface {
	List(ctx context.Context, kind core.TemplateKind) ([]core.Template, error)
	Save(ctx context.Context, kind core.TemplateKind, t core.Template) (core.Template, error)
	SetActive(ctx context.Context, kind core.TemplateKind, id string, active bool) (core.Template, error)
}

type SourceManager interface {
	List(ctx context.Context) ([]core.PaymentSource, error)
	Get(ctx context.Context, id string) (core.PaymentSource, error)
	Save(ctx context.Context, p core.PaymentSource) (core.PaymentSource, error)
}

// Deps carries the services behind the API. Ready, when set, backs /readyz.
type Deps struct {
	Months    MonthManager
	Templates TemplateManager
	Sources   SourceManager
	Ready     func(ctx context.Context) error

	// TrustedProxies are CIDRs added to the private ranges whose
	// X-Forwarded-For is believed.
	TrustedProxies []string
}

// Server is the API server. It embeds http.Server so callers can
// ListenAndServe and Shutdown it directly.
type Server struct {
	http.Server

	months    MonthManager
	templates TemplateManager
	sources   SourceManager
	ready     func(ctx context.Context) error

	logger   *log.Logger
	errLog   *log.StructuredLogger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.ForComponent(log.ComponentHTTP)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		months:    deps.Months,
		templates: deps.Templates,
		sources:   deps.Sources,
		ready:     deps.Ready,
		logger:    logger,
		errLog:    log.NewStructuredLogger(logger),
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:  security.NewDetector(logger),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger.WithComponent(log.ComponentTrace), s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = s.detector.Middleware(true)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)
	s.Handler = handler

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metricsz", s.handleMetrics)

	mux.HandleFunc("GET /api/months", s.handleListMonths)
	mux.HandleFunc("GET /api/months/{month}", s.handleGetMonth)
	mux.HandleFunc("DELETE /api/months/{month}", s.handleDeleteMonth)
	mux.HandleFunc("POST /api/months/{month}/generate", s.handleGenerateMonth)
	mux.HandleFunc("POST /api/months/{month}/sync", s.handleSyncMonth)
	mux.HandleFunc("POST /api/months/{month}/ensure", s.handleEnsureMonth)

	const occurrence = "/api/months/{month}/instances/{instance}/occurrences/{occurrence}"
	mux.HandleFunc("POST "+occurrence+"/close", s.handleCloseOccurrence)
	mux.HandleFunc("POST "+occurrence+"/reopen", s.handleReopenOccurrence)
	mux.HandleFunc("POST "+occurrence+"/split", s.handleSplitOccurrence)
	mux.HandleFunc("POST "+occurrence+"/payments", s.handleApplyPayment)

	mux.HandleFunc("GET /api/templates/{kind}", s.handleListTemplates)
	mux.HandleFunc("POST /api/templates/{kind}", s.handleSaveTemplate)
	mux.HandleFunc("PUT /api/templates/{kind}/{id}/active", s.handleSetTemplateActive)

	mux.HandleFunc("GET /api/payment-sources", s.handleListSources)
	mux.HandleFunc("POST /api/payment-sources", s.handleSaveSource)
	mux.HandleFunc("GET /api/payment-sources/{id}", s.handleGetSource)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(errorBody{Error: errorDetail{Kind: "rate_limited", Message: "Rate limit exceeded. Please try again later."}}).
		Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
