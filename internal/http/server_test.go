package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	srv   *Server
	store *storage.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := storage.NewStore(storage.NewMemoryBackend(), nil, nil)
	templates := services.NewTemplateService(store, nil, nil)
	sources := services.NewPaymentSourceService(store, nil)
	months := services.NewMonthService(services.MonthServiceDeps{
		Store:     store,
		Templates: templates,
		Sources:   sources,
	})

	srv := NewServer(":0", Deps{
		Months:    months,
		Templates: templates,
		Sources:   sources,
		Ready: func(ctx context.Context) error {
			_, err := store.Exists(ctx, storage.PaymentSourcesKey)
			return err
		},
	}, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &apiFixture{srv: srv, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seed(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/templates/bills", map[string]any{
		"id": "rent", "name": "Rent", "amount": 100000,
		"billing_period": "monthly", "day_of_month": 5, "is_active": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/payment-sources", map[string]any{
		"id": "checking", "name": "Checking", "kind": "bank_account", "is_active": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, kind, body.Error.Kind)
	assert.NotEmpty(t, body.Error.Message)
}

// generate creates January 2025 and returns the rent instance and its
// single occurrence.
func (f *apiFixture) generate(t *testing.T) (string, string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/months/2025-01/generate", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decodeBody[core.MonthlyDocument](t, rec)
	require.Len(t, doc.Bills, 1)
	require.Len(t, doc.Bills[0].Occurrences, 1)
	return doc.Bills[0].ID, doc.Bills[0].Occurrences[0].ID
}

func occurrenceURL(inst, occ, action string) string {
	return "/api/months/2025-01/instances/" + inst + "/occurrences/" + occ + "/" + action
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t)

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rec := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), path)
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := NewServer(":0", Deps{Ready: func(context.Context) error { return errors.New("disk gone") }}, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTrustedProxiesFromDeps(t *testing.T) {
	srv := NewServer(":0", Deps{TrustedProxies: []string{"198.51.100.0/24", "not-a-cidr"}}, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	assert.Equal(t, "203.0.113.5", srv.detector.ExtractClientIP(req))

	req.RemoteAddr = "192.0.2.9:4000"
	assert.Equal(t, "192.0.2.9", srv.detector.ExtractClientIP(req))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req_from_client")
	rec := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "req_from_client", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/.env", nil).Code)
	for i := 0; i < 61; i++ {
		f.do(t, http.MethodPost, "/api/months/2025-01/ensure", nil)
	}

	rec := f.do(t, http.MethodGet, "/metricsz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got metricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"requests include this one", got.Requests.Total, 63},
		{"no server errors", got.Requests.Failed, 0},
		{"one request over the limit", got.RateLimit.Hits, 1},
		{"suspicious", got.Security.Suspicious, 1},
		{"blocked", got.Security.Blocked, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestMonthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/months", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"months":[]}`, rec.Body.String())

	assertError(t, f.do(t, http.MethodGet, "/api/months/2025-01", nil), http.StatusNotFound, "not_found")
	assertError(t, f.do(t, http.MethodPost, "/api/months/2025-01/sync", nil), http.StatusNotFound, "not_found")

	f.generate(t)

	rec = f.do(t, http.MethodGet, "/api/months/2025-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[core.MonthlyDocument](t, rec)
	assert.Equal(t, core.NewMonth(2025, 1), doc.Month)
	assert.Equal(t, "2025-01-05", doc.Bills[0].Occurrences[0].ExpectedDate.String())

	rec = f.do(t, http.MethodPost, "/api/months/2025-01/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[syncResponse](t, rec).Added)

	rec = f.do(t, http.MethodPost, "/api/templates/income", map[string]any{
		"name": "Salary", "amount": 250000, "billing_period": "monthly", "day_of_month": 27, "is_active": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/months/2025-01/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	synced := decodeBody[syncResponse](t, rec)
	assert.Equal(t, 1, synced.Added)
	assert.Len(t, synced.Document.Incomes, 1)

	rec = f.do(t, http.MethodPost, "/api/months/2025-02/ensure", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decodeBody[ensureResponse](t, rec).Created)

	rec = f.do(t, http.MethodPost, "/api/months/2025-02/ensure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[ensureResponse](t, rec).Created)

	rec = f.do(t, http.MethodGet, "/api/months", nil)
	assert.JSONEq(t, `{"months":["2025-01","2025-02"]}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/months/2025-02", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertError(t, f.do(t, http.MethodDelete, "/api/months/2025-02", nil), http.StatusNotFound, "not_found")
}

func TestOccurrenceLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t)
	inst, occ := f.generate(t)

	rec := f.do(t, http.MethodPost, occurrenceURL(inst, occ, "close"), map[string]any{
		"closed_date": "2025-01-04", "payment_source_id": "checking", "notes": "paid early",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, closed["is_closed"])
	assert.Equal(t, "2025-01-04", closed["closed_date"])

	assertError(t, f.do(t, http.MethodPost, occurrenceURL(inst, occ, "split"), map[string]any{
		"paid_amount": 100, "closed_date": "2025-01-04",
	}), http.StatusConflict, "invalid_state")

	rec = f.do(t, http.MethodPost, occurrenceURL(inst, occ, "reopen"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["is_closed"])

	rec = f.do(t, http.MethodPost, occurrenceURL(inst, occ, "split"), map[string]any{
		"paid_amount": 40000, "closed_date": "2025-01-05", "payment_source_id": "checking",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	split := decodeBody[map[string]map[string]any](t, rec)
	assert.Equal(t, float64(40000), split["closed"]["expected_amount"])
	assert.Equal(t, float64(60000), split["remainder"]["expected_amount"])
	assert.Equal(t, "2025-01-31", split["remainder"]["expected_date"])
	assert.Equal(t, true, split["remainder"]["is_adhoc"])

	remainder, ok := split["remainder"]["id"].(string)
	require.True(t, ok)

	rec = f.do(t, http.MethodPost, occurrenceURL(inst, remainder, "payments"), map[string]any{
		"amount": 60000, "date": "2025-01-20",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["is_closed"])

	rec = f.do(t, http.MethodGet, "/api/months/2025-01", nil)
	doc := decodeBody[core.MonthlyDocument](t, rec)
	require.Len(t, doc.Bills[0].Occurrences, 2)
	assert.True(t, doc.Bills[0].IsClosed())
}

func TestOccurrenceErrors(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t)
	inst, occ := f.generate(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		kind   string
	}{
		{"bad month", "/api/months/2025-13/instances/x/occurrences/y/reopen", nil, http.StatusUnprocessableEntity, "invalid_input"},
		{"unknown instance", occurrenceURL("missing", occ, "reopen"), nil, http.StatusNotFound, "not_found"},
		{"unknown occurrence", occurrenceURL(inst, "missing", "reopen"), nil, http.StatusNotFound, "not_found"},
		{"malformed json", occurrenceURL(inst, occ, "close"), `{"closed_date":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", occurrenceURL(inst, occ, "close"), `{"closed_at":"2025-01-05"}`, http.StatusBadRequest, "bad_request"},
		{"empty body", occurrenceURL(inst, occ, "close"), "", http.StatusBadRequest, "bad_request"},
		{"invalid date", occurrenceURL(inst, occ, "close"), `{"closed_date":"05/01/2025"}`, http.StatusUnprocessableEntity, "invalid_input"},
		{"missing date", occurrenceURL(inst, occ, "close"), `{}`, http.StatusUnprocessableEntity, "invalid_input"},
		{"unknown payment source", occurrenceURL(inst, occ, "close"), `{"closed_date":"2025-01-05","payment_source_id":"nope"}`, http.StatusNotFound, "not_found"},
		{"split zero", occurrenceURL(inst, occ, "split"), `{"paid_amount":0,"closed_date":"2025-01-05"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"split full amount", occurrenceURL(inst, occ, "split"), `{"paid_amount":100000,"closed_date":"2025-01-05"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"negative payment", occurrenceURL(inst, occ, "payments"), `{"amount":-5,"date":"2025-01-05"}`, http.StatusUnprocessableEntity, "invalid_amount"},
	}

	before := f.do(t, http.MethodGet, "/api/months/2025-01", nil).Body.String()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, f.do(t, http.MethodPost, tt.path, tt.body), tt.status, tt.kind)
		})
	}
	after := f.do(t, http.MethodGet, "/api/months/2025-01", nil).Body.String()
	assert.Equal(t, before, after, "rejected requests leave the month untouched")
}

func TestWrongContentType(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/payment-sources", strings.NewReader("id=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rec, req)
	assertError(t, rec, http.StatusBadRequest, "bad_request")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPut, "/api/months/2025-01/generate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodPost)
}

func TestTemplateEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/templates/bills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[templateListResponse](t, rec)
	require.Len(t, list.Templates, 1)
	assert.Equal(t, "rent", list.Templates[0].ID)
	assert.Equal(t, core.BillTemplate, list.Templates[0].Kind)

	rec = f.do(t, http.MethodGet, "/api/templates/income", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"templates":[]}`, rec.Body.String())

	assertError(t, f.do(t, http.MethodGet, "/api/templates/expenses", nil), http.StatusUnprocessableEntity, "invalid_input")

	assertError(t, f.do(t, http.MethodPost, "/api/templates/bills", map[string]any{
		"name": "Gym", "amount": 3000, "billing_period": "weekly", "is_active": true,
	}), http.StatusUnprocessableEntity, "invalid_input")

	assertError(t, f.do(t, http.MethodPost, "/api/templates/bills", map[string]any{
		"name": "Gym", "amount": 0, "billing_period": "monthly", "day_of_month": 1,
	}), http.StatusUnprocessableEntity, "invalid_amount")

	assertError(t, f.do(t, http.MethodPost, "/api/templates/bills", map[string]any{
		"kind": "income", "name": "Gym", "amount": 3000, "billing_period": "monthly", "day_of_month": 1,
	}), http.StatusUnprocessableEntity, "invalid_input")

	rec = f.do(t, http.MethodPost, "/api/templates/bills", map[string]any{
		"name": "  Gym\x07 ", "amount": 3000, "billing_period": "bi_weekly", "start_date": "2025-01-03", "is_active": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gym := decodeBody[core.Template](t, rec)
	assert.NotEmpty(t, gym.ID)
	assert.Equal(t, "Gym", gym.Name)

	rec = f.do(t, http.MethodPut, "/api/templates/bills/"+gym.ID+"/active", map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[core.Template](t, rec).IsActive)

	assertError(t, f.do(t, http.MethodPut, "/api/templates/bills/"+gym.ID+"/active", map[string]any{}),
		http.StatusUnprocessableEntity, "invalid_input")
	assertError(t, f.do(t, http.MethodPut, "/api/templates/bills/missing/active", map[string]any{"is_active": true}),
		http.StatusNotFound, "not_found")
}

func TestPaymentSourceEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/payment-sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payment_sources":[]}`, rec.Body.String())

	// Legacy records are upgraded on read.
	require.NoError(t, f.store.Backend().Put(context.Background(), storage.PaymentSourcesKey,
		[]byte(`[{"id":"visa","name":"Visa","is_credit":true}]`)))

	rec = f.do(t, http.MethodGet, "/api/payment-sources/visa", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	visa := decodeBody[core.PaymentSource](t, rec)
	assert.Equal(t, core.CreditCard, visa.Kind)

	assertError(t, f.do(t, http.MethodGet, "/api/payment-sources/nope", nil), http.StatusNotFound, "not_found")
	assertError(t, f.do(t, http.MethodPost, "/api/payment-sources", map[string]any{"id": "x", "name": "X", "kind": "gold"}),
		http.StatusUnprocessableEntity, "invalid_input")
}

func TestSuspiciousRequestsAreBlocked(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/.env", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationsAreRateLimited(t *testing.T) {
	f := newAPIFixture(t)

	var last int
	for i := 0; i < 61; i++ {
		last = f.do(t, http.MethodPost, "/api/months/2025-01/ensure", nil).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/months", nil).Code)
}

func TestInternalErrorsAreNotExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponse(errors.New("pq: password authentication failed")).Write(rec)
	assertError(t, rec, http.StatusInternalServerError, "internal")
	assert.NotContains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	ErrorResponse(core.IOFailure(errors.New("disk"), "failed to write month 2025-01")).Write(rec)
	assertError(t, rec, http.StatusInternalServerError, "io_failure")
	assert.Contains(t, rec.Body.String(), "failed to write month 2025-01")
}
