package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body sends no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. The body is marshaled before any header
// is written so an encoding failure still yields a clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	var payload []byte
	if b.body != nil {
		data, err := json.Marshal(b.body)
		if err != nil {
			b.statusCode = http.StatusInternalServerError
			data, _ = json.Marshal(errorBody{Error: errorDetail{Kind: kindInternal, Message: "failed to encode response"}})
		}
		payload = append(data, '\n')
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if payload != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(b.statusCode)
	if payload != nil {
		_, _ = w.Write(payload)
	}
}

const (
	kindBadRequest = "bad_request"
	kindInternal   = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusFor maps an error to its HTTP status and the kind reported to the
// client.
func statusFor(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, kindBadRequest
	}

	switch kind := core.KindOf(err); kind {
	case core.KindNotFound:
		return http.StatusNotFound, string(kind)
	case core.KindInvalidState:
		return http.StatusConflict, string(kind)
	case core.KindInvalidAmount, core.KindInvalidInput:
		return http.StatusUnprocessableEntity, string(kind)
	case core.KindIOFailure:
		return http.StatusInternalServerError, string(kind)
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

// ErrorResponse builds the error envelope for err. Messages of errors that
// are not domain or request errors are not exposed.
func ErrorResponse(err error) *JSONResponseBuilder {
	status, kind := statusFor(err)

	message := "internal error"
	if kind != kindInternal {
		message = core.MessageOf(err)
	}
	return NewJSONResponse().
		Status(status).
		Body(errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

// writeError sends the error envelope and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.errLog.LogError(r.Context(), "Request failed", err, op,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldErrorKind, kind,
			log.FieldError, err)
	}
	ErrorResponse(err).Write(w)
}
