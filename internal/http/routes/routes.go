package routes

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/apigateway/internal/gateway"
	appmw "github.com/briangreenhill/apigateway/internal/http/middleware"
	"github.com/briangreenhill/apigateway/internal/jobs"
	"github.com/briangreenhill/apigateway/internal/providers"
)

type Server struct {
	Router  *chi.Mux
	Gateway gateway.Caller
	Queue   jobs.Enqueuer // nil disables async calls
	Log     zerolog.Logger
}

type ServerOptions struct {
	Gateway gateway.Caller
	Keys    appmw.KeyResolver
	Queue   jobs.Enqueuer
	Metrics prometheus.Gatherer
	Log     zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Log))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Gateway: opts.Gateway, Queue: opts.Queue, Log: opts.Log}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Use(appmw.RequireAPIKey(opts.Keys))

		ar.Get("/weather", s.handleWeather)
		ar.Get("/news", s.handleNews)
		ar.Get("/github/user", s.handleGitHubUser)

		ar.Get("/simple/price", s.handleSimplePrice)
		ar.Get("/coins", s.handleCoin)
		ar.Get("/coins/market_chart", s.handleMarketChart)
		ar.Get("/coins/history", s.handleCoinHistory)
		ar.Get("/search", s.handleSearch)
		ar.Get("/search/trending", s.handleTrending)

		ar.Get("/exchange/latest", s.handleExchangeLatest)
		ar.Get("/exchange/pair", s.handleExchangePair)

		ar.Post("/calls", s.handleEnqueueCall)
	})

	return s
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

// call runs a gateway call attributed to the authenticated caller and writes
// the result.
func (s *Server) call(w http.ResponseWriter, r *http.Request, service, path string, params map[string]string) {
	res := s.Gateway.Call(r.Context(), service, path, params,
		gateway.WithCaller(appmw.CallerFrom(r.Context())))
	writeJSON(w, statusFor(res), res)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := queryOr(r, "city", "London")
	country := queryOr(r, "country", "UK")
	s.call(w, r, providers.OpenWeather, "/weather", map[string]string{
		"q":     city + "," + country,
		"units": "metric",
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	s.call(w, r, providers.NewsAPI, "/v2/top-headlines", map[string]string{
		"category": queryOr(r, "category", "general"),
		"pageSize": "10",
	})
}

func (s *Server) handleGitHubUser(w http.ResponseWriter, r *http.Request) {
	username, ok := required(w, r, "username", "Username")
	if !ok {
		return
	}
	s.call(w, r, providers.GitHub, "/users/"+segment(username), nil)
}

func (s *Server) handleSimplePrice(w http.ResponseWriter, r *http.Request) {
	ids, ok := required(w, r, "ids", "Ids")
	if !ok {
		return
	}
	s.call(w, r, providers.CoinGecko, "/simple/price", map[string]string{
		"ids":           ids,
		"vs_currencies": queryOr(r, "vs_currencies", "usd"),
	})
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	id, ok := required(w, r, "id", "Id")
	if !ok {
		return
	}
	s.call(w, r, providers.CoinGecko, "/coins/"+segment(id), nil)
}

func (s *Server) handleMarketChart(w http.ResponseWriter, r *http.Request) {
	id, ok := required(w, r, "id", "Id")
	if !ok {
		return
	}
	s.call(w, r, providers.CoinGecko, "/coins/"+segment(id)+"/market_chart", map[string]string{
		"vs_currency": queryOr(r, "vs_currency", "usd"),
		"days":        queryOr(r, "days", "7"),
	})
}

func (s *Server) handleCoinHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := required(w, r, "id", "Id")
	if !ok {
		return
	}
	date, ok := required(w, r, "date", "Date")
	if !ok {
		return
	}
	s.call(w, r, providers.CoinGecko, "/coins/"+segment(id)+"/history", map[string]string{"date": date})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := required(w, r, "query", "Query")
	if !ok {
		return
	}
	s.call(w, r, providers.CoinGecko, "/search", map[string]string{"query": query})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	s.call(w, r, providers.CoinGecko, "/search/trending", nil)
}

func (s *Server) handleExchangeLatest(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(queryOr(r, "currency", "USD"))
	s.call(w, r, providers.ExchangeRate, "/latest/"+segment(currency), nil)
}

func (s *Server) handleExchangePair(w http.ResponseWriter, r *http.Request) {
	from, ok := required(w, r, "from", "From")
	if !ok {
		return
	}
	to, ok := required(w, r, "to", "To")
	if !ok {
		return
	}
	path := "/pair/" + segment(strings.ToUpper(from)) + "/" + segment(strings.ToUpper(to))
	if amount := r.URL.Query().Get("amount"); amount != "" {
		path += "/" + segment(amount)
	}
	s.call(w, r, providers.ExchangeRate, path, nil)
}

type enqueueRequest struct {
	Service string            `json:"service"`
	Path    string            `json:"path"`
	Params  map[string]string `json:"params"`
}

// handleEnqueueCall queues a gateway call for the worker and answers 202.
func (s *Server) handleEnqueueCall(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "async calls are not enabled"})
		return
	}
	var body enqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if body.Service == "" || body.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "service and path are required"})
		return
	}

	id, err := jobs.EnqueueCall(r.Context(), s.Queue, jobs.CallPayload{
		Service: body.Service,
		Path:    body.Path,
		Params:  body.Params,
		Caller:  appmw.CallerFrom(r.Context()),
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("service", body.Service).Msg("enqueue gateway call")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "could not queue call"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// statusFor maps a gateway result onto the inbound response status.
func statusFor(res gateway.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Err.Kind {
	case gateway.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case gateway.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func queryOr(r *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
		return v
	}
	return fallback
}

// required reads a mandatory query parameter and answers 400 when missing.
func required(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": label + " parameter required"})
		return "", false
	}
	return v, true
}

// segment escapes a user value for use as one path segment.
func segment(v string) string {
	return url.PathEscape(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
