package http

import (
	"context"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports whether the document store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics reports the middleware counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requests := s.tracer.GetMetrics()
	limits := s.limiter.GetMetrics()
	threats := s.detector.GetMetrics()
	NewJSONResponse().Body(metricsResponse{
		Requests: requestMetrics{
			Total:            requests.TotalRequests,
			Failed:           requests.FailedRequests,
			LastResponseTime: requests.LastResponseTime,
		},
		RateLimit: rateLimitMetrics{
			Hits:    limits.TotalHits,
			Clients: limits.ClientCount,
		},
		Security: securityMetrics{
			Suspicious: threats.SuspiciousRequests,
			Blocked:    threats.BlockedRequests,
		},
	}).Write(w)
}

type (
	metricsResponse struct {
		Requests  requestMetrics   `json:"requests"`
		RateLimit rateLimitMetrics `json:"rate_limit"`
		Security  securityMetrics  `json:"security"`
	}

	requestMetrics struct {
		Total            int64 `json:"total"`
		Failed           int64 `json:"failed"`
		LastResponseTime int64 `json:"last_response_time_us"`
	}

	rateLimitMetrics struct {
		Hits    int64 `json:"hits"`
		Clients int64 `json:"clients"`
	}

	securityMetrics struct {
		Suspicious int64 `json:"suspicious"`
		Blocked    int64 `json:"blocked"`
	}

	monthListResponse struct {
		Months []core.Month `json:"months"`
	}

	syncResponse struct {
		Document *core.MonthlyDocument `json:"document"`
		Added    int                   `json:"added"`
	}

	ensureResponse struct {
		Document *core.MonthlyDocument `json:"document"`
		Created  bool                  `json:"created"`
		Added    int                   `json:"added"`
	}

	templateListResponse struct {
		Templates []core.Template `json:"templates"`
	}

	sourceListResponse struct {
		PaymentSources []core.PaymentSource `json:"payment_sources"`
	}

	activeRequest struct {
		IsActive *bool `json:"is_active"`
	}
)
