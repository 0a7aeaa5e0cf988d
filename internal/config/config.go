// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, quotas, pipeline budgets, upstream provider
// credentials, and observability settings.
package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "shiporskip-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// QuotaConfig holds the daily allowances per identity class and the policy
// applied when the usage ledger cannot be reached.
type QuotaConfig struct {
	AnonFast int
	AnonDeep int
	UserFast int
	UserDeep int

	// FailOpen admits requests when the ledger store errors. Accounting is
	// never faked either way.
	FailOpen bool

	// AnonSalt is mixed into the anonymous identity hash.
	AnonSalt string
}

// LLMConfig configures the OpenAI-compatible chat completion backend.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ProvidersConfig configures the upstream search backends.
type ProvidersConfig struct {
	TavilyAPIKey  string
	TavilyBaseURL string
	GitHubToken   string
	GitHubAPIURL  string
	GitHubRawURL  string
	Timeout       time.Duration // per provider call
	UserAgent     string
}

// PipelineConfig bounds the research pipeline.
type PipelineConfig struct {
	FastBudget         time.Duration
	DeepBudget         time.Duration
	IdeaMaxRunes       int
	MaxRawSources      int
	DeepFetchTopN      int
	DeepFetchParallel  int
	FetchTimeout       time.Duration
	EnrichMaxChars     int
	ContextBudget      int
	RankingPolicyFile  string
	ResearchStaleAfter time.Duration
	JanitorInterval    time.Duration
}

// ChatConfig bounds chat-on-report and notes.
type ChatConfig struct {
	MaxMessageRunes int
	HistoryWindow   int
	FreeUserLimit   int
	NotesMaxRunes   int
	KnowledgeFile   string // optional product FAQ searched alongside the report
}

// AuthConfig configures delegated authentication and bot verification.
type AuthConfig struct {
	URL                string
	ServiceKey         string
	CacheTTL           time.Duration
	TurnstileSecret    string
	TurnstileVerifyURL string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must cover the deep budget for SSE
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Client addressing. Empty TrustedProxies means forwarded headers are ignored.
	TrustedProxies  []string // IPs or CIDRs allowed to set X-Forwarded-For
	TrustedPlatform string   // header set by the edge, e.g. CF-Connecting-IP

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence
	DBDriver string // sqlite|postgres|mysql
	DBPath   string // SQLite path
	DBDSN    string // DSN for postgres/mysql

	// Rate limiting (edge throttle, token bucket)
	RateRPS           float64 // tokens per second (>= 0)
	RateBurst         int     // bucket size (>= 1)
	AnalyzeFastPerMin int
	AnalyzeDeepPerMin int

	Quota     QuotaConfig
	LLM       LLMConfig
	Providers ProvidersConfig
	Pipeline  PipelineConfig
	Chat      ChatConfig
	Auth      AuthConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		TrustedProxies:    splitCSV(getenv("TRUSTED_PROXIES", "")),
		TrustedPlatform:   strings.TrimSpace(getenv("TRUSTED_PLATFORM", "")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Persistence
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:   getenv("DB_PATH", "app.db"),
		DBDSN:    getenv("DATABASE_URL", ""),

		// Rate limiting
		RateRPS:           getfloat("RATE_RPS", 5.0),
		RateBurst:         getint("RATE_BURST", 10),
		AnalyzeFastPerMin: getint("ANALYZE_FAST_PER_MIN", 10),
		AnalyzeDeepPerMin: getint("ANALYZE_DEEP_PER_MIN", 3),

		Quota: QuotaConfig{
			AnonFast: getint("QUOTA_ANON_FAST", 3),
			AnonDeep: getint("QUOTA_ANON_DEEP", 1),
			UserFast: getint("QUOTA_USER_FAST", 20),
			UserDeep: getint("QUOTA_USER_DEEP", 4),
			FailOpen: getbool("QUOTA_FAIL_OPEN", false),
			AnonSalt: getenv("ANON_HASH_SALT", "shiporskip"),
		},

		LLM: LLMConfig{
			APIKey:  getenv("OPENAI_API_KEY", ""),
			BaseURL: getenv("OPENAI_BASE_URL", ""),
			Model:   getenv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: getdur("LLM_TIMEOUT", 60*time.Second),
		},

		Providers: ProvidersConfig{
			TavilyAPIKey:  getenv("TAVILY_API_KEY", ""),
			TavilyBaseURL: strings.TrimRight(getenv("TAVILY_BASE_URL", "https://api.tavily.com"), "/"),
			GitHubToken:   getenv("GITHUB_TOKEN", ""),
			GitHubAPIURL:  strings.TrimRight(getenv("GITHUB_API_URL", "https://api.github.com"), "/"),
			GitHubRawURL:  strings.TrimRight(getenv("GITHUB_RAW_URL", "https://raw.githubusercontent.com"), "/"),
			Timeout:       getdur("PROVIDER_TIMEOUT", 15*time.Second),
			UserAgent:     getenv("FETCH_USER_AGENT", "ShipOrSkipBot/1.0 (+https://shiporskip.com)"),
		},

		Pipeline: PipelineConfig{
			FastBudget:         getdur("FAST_BUDGET", 30*time.Second),
			DeepBudget:         getdur("DEEP_BUDGET", 150*time.Second),
			IdeaMaxRunes:       getint("IDEA_MAX_RUNES", 500),
			MaxRawSources:      getint("MAX_RAW_SOURCES", 25),
			DeepFetchTopN:      getint("DEEP_FETCH_TOP_N", 8),
			DeepFetchParallel:  getint("DEEP_FETCH_CONCURRENCY", 5),
			FetchTimeout:       getdur("FETCH_TIMEOUT", 10*time.Second),
			EnrichMaxChars:     getint("ENRICH_MAX_CHARS", 3000),
			ContextBudget:      getint("CONTEXT_BUDGET_CHARS", 16000),
			RankingPolicyFile:  getenv("RANKING_POLICY_FILE", ""),
			ResearchStaleAfter: getdur("RESEARCH_STALE_AFTER", 10*time.Minute),
			JanitorInterval:    getdur("JANITOR_INTERVAL", time.Minute),
		},

		Chat: ChatConfig{
			MaxMessageRunes: getint("CHAT_MAX_MESSAGE_RUNES", 1000),
			HistoryWindow:   getint("CHAT_HISTORY_WINDOW", 10),
			FreeUserLimit:   getint("CHAT_FREE_LIMIT", 5),
			NotesMaxRunes:   getint("NOTES_MAX_RUNES", 10000),
			KnowledgeFile:   strings.TrimSpace(getenv("CHAT_KNOWLEDGE_FILE", "")),
		},

		Auth: AuthConfig{
			URL:                strings.TrimRight(getenv("AUTH_URL", ""), "/"),
			ServiceKey:         getenv("AUTH_SERVICE_KEY", ""),
			CacheTTL:           getdur("AUTH_CACHE_TTL", 5*time.Minute),
			TurnstileSecret:    strings.TrimSpace(getenv("TURNSTILE_SECRET_KEY", "")),
			TurnstileVerifyURL: getenv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "shiporskip-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	for _, p := range cfg.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return cfg, errors.New("TRUSTED_PROXIES entries must be IPs or CIDRs: " + p)
		}
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return cfg, errors.New("DATABASE_URL must be set for DB_DRIVER=" + cfg.DBDriver)
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.AnalyzeFastPerMin < 1 || cfg.AnalyzeDeepPerMin < 1 {
		return cfg, errors.New("ANALYZE_*_PER_MIN must be >= 1")
	}
	q := cfg.Quota
	if q.AnonFast < 0 || q.AnonDeep < 0 || q.UserFast < 0 || q.UserDeep < 0 {
		return cfg, errors.New("QUOTA_* must be >= 0")
	}
	if q.UserFast < q.AnonFast || q.UserDeep < q.AnonDeep {
		return cfg, errors.New("authenticated quotas must not be lower than anonymous quotas")
	}
	if q.AnonDeep > q.AnonFast || q.UserDeep > q.UserFast {
		return cfg, errors.New("deep quotas must not exceed fast quotas")
	}
	if cfg.LLM.Timeout <= 0 || cfg.Providers.Timeout <= 0 || cfg.Pipeline.FetchTimeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT, PROVIDER_TIMEOUT and FETCH_TIMEOUT must be > 0")
	}
	p := cfg.Pipeline
	if p.FastBudget <= 0 || p.DeepBudget <= 0 {
		return cfg, errors.New("FAST_BUDGET and DEEP_BUDGET must be > 0")
	}
	if p.FastBudget > p.DeepBudget {
		return cfg, errors.New("FAST_BUDGET must not exceed DEEP_BUDGET")
	}
	if p.IdeaMaxRunes < 1 || p.MaxRawSources < 1 || p.EnrichMaxChars < 1 || p.ContextBudget < 1 {
		return cfg, errors.New("IDEA_MAX_RUNES, MAX_RAW_SOURCES, ENRICH_MAX_CHARS and CONTEXT_BUDGET_CHARS must be >= 1")
	}
	if p.DeepFetchTopN < 1 || p.DeepFetchTopN > 20 {
		return cfg, errors.New("DEEP_FETCH_TOP_N must be in [1,20]")
	}
	if p.DeepFetchParallel < 1 {
		return cfg, errors.New("DEEP_FETCH_CONCURRENCY must be >= 1")
	}
	if p.ResearchStaleAfter <= 0 || p.JanitorInterval < 0 {
		return cfg, errors.New("RESEARCH_STALE_AFTER must be > 0 and JANITOR_INTERVAL >= 0")
	}
	c := cfg.Chat
	if c.MaxMessageRunes < 1 || c.HistoryWindow < 0 || c.FreeUserLimit < 0 || c.NotesMaxRunes < 1 {
		return cfg, errors.New("CHAT_* and NOTES_MAX_RUNES values are out of range")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
