package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bilancio/internal/core"
)

const maxBodyBytes = 1 << 20

// requestError reports a request the server could not parse at all.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{msg: msg, err: err}
}

// decodeJSON decodes a single JSON object from the request body into v.
// Domain errors raised by field decoders (an invalid date, say) pass
// through unchanged; anything else is a bad request.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return badRequest("content type must be application/json", nil)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if core.KindOf(err) != "" {
			return err
		}
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("request body too large", nil)
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty", nil)
		default:
			return badRequest("malformed JSON body", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object", nil)
	}
	return nil
}

// pathMonth parses the {month} path segment.
func pathMonth(r *http.Request) (core.Month, error) {
	return core.ParseMonth(r.PathValue("month"))
}

// pathKind parses the {kind} path segment.
func pathKind(r *http.Request) (core.TemplateKind, error) {
	return core.ParseTemplateKind(r.PathValue("kind"))
}

// occurrencePath identifies one occurrence addressed by the URL.
type occurrencePath struct {
	Month        core.Month
	InstanceID   string
	OccurrenceID string
}

func parseOccurrencePath(r *http.Request) (occurrencePath, error) {
	month, err := pathMonth(r)
	if err != nil {
		return occurrencePath{}, err
	}
	return occurrencePath{
		Month:        month,
		InstanceID:   r.PathValue("instance"),
		OccurrenceID: r.PathValue("occurrence"),
	}, nil
}
