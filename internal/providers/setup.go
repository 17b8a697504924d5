package providers

import "time"

// Service names understood by the gateway.
const (
	OpenWeather  = "openweather"
	NewsAPI      = "newsapi"
	GitHub       = "github"
	CoinGecko    = "coingecko"
	ExchangeRate = "exchangeRate"
)

// githubPlaceholder is the unconfigured token shipped in sample env files.
const githubPlaceholder = "YOUR_GITHUB_TOKEN"

// Definition is the provisioning record for a built-in service.
type Definition struct {
	Name             string
	BaseURL          string
	RateLimitPerHour int
	// SecretEnv names the environment variable holding the plaintext secret.
	SecretEnv string
}

// Definitions lists the built-in services in provisioning order.
func Definitions() []Definition {
	return []Definition{
		{Name: OpenWeather, BaseURL: "https://api.openweathermap.org/data/2.5", RateLimitPerHour: 60, SecretEnv: "OPENWEATHER_API_KEY"},
		{Name: NewsAPI, BaseURL: "https://newsapi.org", RateLimitPerHour: 100, SecretEnv: "NEWSAPI_API_KEY"},
		{Name: GitHub, BaseURL: "https://api.github.com", RateLimitPerHour: 60, SecretEnv: "GITHUB_PERSONAL_TOKEN"},
		{Name: CoinGecko, BaseURL: "https://api.coingecko.com/api/v3", RateLimitPerHour: 60, SecretEnv: "COINGECKO_API_KEY"},
		{Name: ExchangeRate, BaseURL: "https://v6.exchangerate-api.com/v6", RateLimitPerHour: 60, SecretEnv: "EXCHANGE_RATE_API_KEY"},
	}
}

// Setup creates a registry with the built-in credential schemes and cache
// lifetimes.
func Setup() *Registry {
	registry := NewRegistry()

	registry.Register(QueryParam{Service: OpenWeather, Param: "appid", CacheFor: 600 * time.Second})
	registry.Register(Header{Service: NewsAPI, Key: "X-Api-Key", CacheFor: 300 * time.Second})
	registry.Register(QueryParam{Service: CoinGecko, Param: "x_cg_demo_api_key", CacheFor: 1800 * time.Second})
	registry.Register(Header{
		Service:  GitHub,
		Key:      "Authorization",
		Prefix:   "token ",
		Skip:     []string{githubPlaceholder},
		CacheFor: 1800 * time.Second,
	})
	// no dedicated lifetime; falls back to DefaultTTL
	registry.Register(PathPrefix{Service: ExchangeRate})

	return registry
}
