package providers

import (
	"reflect"
	"testing"
	"time"
)

// mockProvider is a test implementation of the Provider interface
type mockProvider struct {
	name string
	ttl  time.Duration
}

func (m *mockProvider) Name() string      { return m.name }
func (m *mockProvider) TTL() time.Duration { return m.ttl }

func (m *mockProvider) Inject(secret string, req *Request) {
	req.Params = map[string]string{"mock": secret}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	if registry == nil {
		t.Fatal("NewRegistry should not return nil")
	}

	providers := registry.List()
	if len(providers) != 0 {
		t.Errorf("New registry should be empty, got %d providers: %v", len(providers), providers)
	}
}

func TestRegisterAndGetProvider(t *testing.T) {
	registry := NewRegistry()
	provider := &mockProvider{name: "test", ttl: time.Minute}

	registry.Register(provider)

	retrieved, exists := registry.Get("test")
	if !exists {
		t.Error("Provider should exist after registration")
	}
	if retrieved != provider {
		t.Error("Retrieved provider should be the same as registered")
	}

	if _, exists := registry.Get("nonexistent"); exists {
		t.Error("Non-existent provider should not exist")
	}
}

func TestRegistryTTL(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&mockProvider{name: "fast", ttl: time.Minute})
	registry.Register(&mockProvider{name: "unset"})

	if got := registry.TTL("fast"); got != time.Minute {
		t.Errorf("TTL(fast) = %v, want 1m", got)
	}
	if got := registry.TTL("unset"); got != DefaultTTL {
		t.Errorf("TTL(unset) = %v, want %v", got, DefaultTTL)
	}
	if got := registry.TTL("missing"); got != DefaultTTL {
		t.Errorf("TTL(missing) = %v, want %v", got, DefaultTTL)
	}
}

func TestListSorted(t *testing.T) {
	registry := Setup()
	want := []string{CoinGecko, ExchangeRate, GitHub, NewsAPI, OpenWeather}
	if got := registry.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestSetupTTLs(t *testing.T) {
	registry := Setup()
	tests := map[string]time.Duration{
		OpenWeather:  600 * time.Second,
		NewsAPI:      300 * time.Second,
		GitHub:       1800 * time.Second,
		CoinGecko:    1800 * time.Second,
		ExchangeRate: 300 * time.Second,
		"other":      300 * time.Second,
	}
	for name, want := range tests {
		if got := registry.TTL(name); got != want {
			t.Errorf("TTL(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSetupInjection(t *testing.T) {
	registry := Setup()

	tests := []struct {
		name        string
		service     string
		secret      string
		path        string
		wantPath    string
		wantParams  map[string]string
		wantHeaders map[string]string
	}{
		{
			name:        "openweather query",
			service:     OpenWeather,
			secret:      "ow",
			path:        "/weather",
			wantPath:    "/weather",
			wantParams:  map[string]string{"q": "London", "appid": "ow"},
			wantHeaders: map[string]string{},
		},
		{
			name:        "newsapi header",
			service:     NewsAPI,
			secret:      "na",
			path:        "/v2/top-headlines",
			wantPath:    "/v2/top-headlines",
			wantParams:  map[string]string{"q": "London"},
			wantHeaders: map[string]string{"X-Api-Key": "na"},
		},
		{
			name:        "coingecko query",
			service:     CoinGecko,
			secret:      "cg",
			path:        "/ping",
			wantPath:    "/ping",
			wantParams:  map[string]string{"q": "London", "x_cg_demo_api_key": "cg"},
			wantHeaders: map[string]string{},
		},
		{
			name:        "github token",
			service:     GitHub,
			secret:      "ghp_x",
			path:        "/users/octocat",
			wantPath:    "/users/octocat",
			wantParams:  map[string]string{"q": "London"},
			wantHeaders: map[string]string{"Authorization": "token ghp_x"},
		},
		{
			name:        "github placeholder is anonymous",
			service:     GitHub,
			secret:      "YOUR_GITHUB_TOKEN",
			path:        "/users/octocat",
			wantPath:    "/users/octocat",
			wantParams:  map[string]string{"q": "London"},
			wantHeaders: map[string]string{},
		},
		{
			name:        "exchange rate path",
			service:     ExchangeRate,
			secret:      "er",
			path:        "/latest/USD",
			wantPath:    "/er/latest/USD",
			wantParams:  map[string]string{"q": "London"},
			wantHeaders: map[string]string{},
		},
		{
			name:        "unknown service untouched",
			service:     "other",
			secret:      "x",
			path:        "/p",
			wantPath:    "/p",
			wantParams:  map[string]string{"q": "London"},
			wantHeaders: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{
				Path:    tt.path,
				Params:  map[string]string{"q": "London"},
				Headers: map[string]string{},
			}
			registry.Inject(tt.service, tt.secret, req)

			if req.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", req.Path, tt.wantPath)
			}
			if !reflect.DeepEqual(req.Params, tt.wantParams) {
				t.Errorf("params = %v, want %v", req.Params, tt.wantParams)
			}
			if !reflect.DeepEqual(req.Headers, tt.wantHeaders) {
				t.Errorf("headers = %v, want %v", req.Headers, tt.wantHeaders)
			}
		})
	}
}

func TestInjectNilMaps(t *testing.T) {
	req := &Request{Path: "weather"}
	QueryParam{Service: "s", Param: "appid"}.Inject("k", req)
	Header{Service: "s", Key: "X-Key"}.Inject("k", req)
	PathPrefix{Service: "s"}.Inject("k", req)

	if req.Params["appid"] != "k" {
		t.Errorf("expected appid param, got %v", req.Params)
	}
	if req.Headers["X-Key"] != "k" {
		t.Errorf("expected header, got %v", req.Headers)
	}
	if req.Path != "/k/weather" {
		t.Errorf("path = %q", req.Path)
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	if len(defs) != 5 {
		t.Fatalf("expected 5 definitions, got %d", len(defs))
	}
	registry := Setup()
	for _, d := range defs {
		if _, ok := registry.Get(d.Name); !ok {
			t.Errorf("definition %q has no registered provider", d.Name)
		}
		if d.SecretEnv == "" || d.BaseURL == "" {
			t.Errorf("definition %q incomplete: %+v", d.Name, d)
		}
		want := 60
		if d.Name == NewsAPI {
			want = 100
		}
		if d.RateLimitPerHour != want {
			t.Errorf("%s rate limit = %d, want %d", d.Name, d.RateLimitPerHour, want)
		}
	}
}
