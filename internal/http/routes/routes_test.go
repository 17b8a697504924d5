package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/apigateway/internal/gateway"
	appmw "github.com/briangreenhill/apigateway/internal/http/middleware"
	"github.com/briangreenhill/apigateway/internal/jobs"
)

type recordedCall struct {
	service string
	path    string
	params  map[string]string
}

// fakeGateway records each call and answers with result.
type fakeGateway struct {
	calls  []recordedCall
	result gateway.Result
}

func (f *fakeGateway) Call(_ context.Context, service, path string, params map[string]string, _ ...gateway.CallOption) gateway.Result {
	f.calls = append(f.calls, recordedCall{service, path, params})
	if f.result.Err == nil && f.result.Data == nil {
		return gateway.Result{Data: json.RawMessage(`{"ok":true}`), Status: http.StatusOK}
	}
	return f.result
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func newTestServer(gw *fakeGateway, q jobs.Enqueuer) *Server {
	return New(ServerOptions{
		Gateway: gw,
		Keys:    appmw.StaticKeys{"test-key": "tester"},
		Queue:   q,
		Metrics: prometheus.NewRegistry(),
		Log:     zerolog.Nop(),
	})
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Api-Key test-key")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresKey(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(gw, nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weather", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, gw.calls)
}

func TestRouteMapping(t *testing.T) {
	tests := []struct {
		target  string
		service string
		path    string
		params  map[string]string
	}{
		{"/api/weather?city=London&country=UK", "openweather", "/weather", map[string]string{"q": "London,UK", "units": "metric"}},
		{"/api/weather", "openweather", "/weather", map[string]string{"q": "London,UK", "units": "metric"}},
		{"/api/news?category=technology", "newsapi", "/v2/top-headlines", map[string]string{"category": "technology", "pageSize": "10"}},
		{"/api/github/user?username=testuser", "github", "/users/testuser", nil},
		{"/api/simple/price?ids=bitcoin&vs_currencies=usd", "coingecko", "/simple/price", map[string]string{"ids": "bitcoin", "vs_currencies": "usd"}},
		{"/api/coins?id=bitcoin", "coingecko", "/coins/bitcoin", nil},
		{"/api/coins/market_chart?id=bitcoin&vs_currency=eur&days=30", "coingecko", "/coins/bitcoin/market_chart", map[string]string{"vs_currency": "eur", "days": "30"}},
		{"/api/coins/history?id=bitcoin&date=30-12-2023", "coingecko", "/coins/bitcoin/history", map[string]string{"date": "30-12-2023"}},
		{"/api/search?query=eth", "coingecko", "/search", map[string]string{"query": "eth"}},
		{"/api/search/trending", "coingecko", "/search/trending", nil},
		{"/api/exchange/latest?currency=usd", "exchangeRate", "/latest/USD", nil},
		{"/api/exchange/pair?from=USD&to=JPY&amount=1", "exchangeRate", "/pair/USD/JPY/1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			gw := &fakeGateway{}
			rec := do(newTestServer(gw, nil), http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
			require.Len(t, gw.calls, 1)
			assert.Equal(t, tt.service, gw.calls[0].service)
			assert.Equal(t, tt.path, gw.calls[0].path)
			assert.Equal(t, tt.params, gw.calls[0].params)
		})
	}
}

func TestMissingParameters(t *testing.T) {
	for _, target := range []string{
		"/api/github/user",
		"/api/coins",
		"/api/coins/market_chart",
		"/api/coins/history?id=bitcoin",
		"/api/search",
		"/api/simple/price",
		"/api/exchange/pair?from=USD",
	} {
		gw := &fakeGateway{}
		rec := do(newTestServer(gw, nil), http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "parameter required", target)
		assert.Empty(t, gw.calls, target)
	}
}

func TestGatewayErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		kind gateway.Kind
		want int
	}{
		{gateway.ServiceUnavailable, http.StatusServiceUnavailable},
		{gateway.CredentialInvalid, http.StatusBadGateway},
		{gateway.Timeout, http.StatusGatewayTimeout},
		{gateway.UpstreamFailure, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			gw := &fakeGateway{result: gateway.Result{Err: &gateway.Error{Kind: tt.kind, Message: "nope"}}}
			rec := do(newTestServer(gw, nil), http.MethodGet, "/api/search/trending", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.JSONEq(t, `{"error":"nope"}`, rec.Body.String())
		})
	}
}

func TestEnqueueCall(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(&fakeGateway{}, q)

	rec := do(s, http.MethodPost, "/api/calls", `{"service":"github","path":"/users/octocat"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"task-1"}`, rec.Body.String())
	require.Len(t, q.tasks, 1)

	var p jobs.CallPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, "github", p.Service)
	assert.Equal(t, "tester", p.Caller)

	rec = do(s, http.MethodPost, "/api/calls", `{"service":"github"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, "/api/calls", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	q.err = errors.New("redis down")
	rec = do(s, http.MethodPost, "/api/calls", `{"service":"github","path":"/x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnqueueCallDisabled(t *testing.T) {
	rec := do(newTestServer(&fakeGateway{}, nil), http.MethodPost, "/api/calls", `{"service":"github","path":"/x"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
