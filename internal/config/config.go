// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, auth, chat limits,
// realtime tuning, rate limiting, and observability.
//
// Sources, lowest precedence first: built-in defaults, the optional YAML file
// named by CONFIG_FILE (chat and realtime sections only), the optional .env
// file named by ENV_FILE (default ".env"), and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chat-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines bearer-token verification.
type AuthConfig struct {
	JWTSecret string // JWT_SECRET (HS256)
	JWTIssuer string // JWT_ISSUER, optional
}

// ChatConfig defines message and window limits.
type ChatConfig struct {
	PageSize        int `yaml:"page_size"`         // CHAT_PAGE_SIZE
	MaxContentRunes int `yaml:"max_content_runes"` // CHAT_MAX_CONTENT_RUNES
}

// AssetConfig defines the external image host.
type AssetConfig struct {
	ServiceURL     string        // ASSET_SERVICE_URL
	APIKey         string        // ASSET_API_KEY
	UploadTimeout  time.Duration // ASSET_UPLOAD_TIMEOUT
	UploadTmpDir   string        // UPLOAD_TMP_DIR
	MaxUploadBytes int64         // MAX_UPLOAD_BYTES
}

// RealtimeConfig tunes websocket connections.
type RealtimeConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`   // WS_SEND_BUFFER
	PingInterval time.Duration `yaml:"ping_interval"` // WS_PING_INTERVAL
	WriteTimeout time.Duration `yaml:"write_timeout"` // WS_WRITE_TIMEOUT
}

// RetentionConfig schedules the idempotency purge.
type RetentionConfig struct {
	Enabled bool   // RETENTION_ENABLED
	Cron    string // RETENTION_CRON
}

// fileConfig is the shape of the CONFIG_FILE overlay.
type fileConfig struct {
	Chat     ChatConfig     `yaml:"chat"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path

	Auth      AuthConfig
	Chat      ChatConfig
	Assets    AssetConfig
	Realtime  RealtimeConfig
	Retention RetentionConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

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
	envFile := getenv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	fc, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			JWTIssuer: getenv("JWT_ISSUER", ""),
		},
		Chat: ChatConfig{
			PageSize:        getint("CHAT_PAGE_SIZE", orInt(fc.Chat.PageSize, 50)),
			MaxContentRunes: getint("CHAT_MAX_CONTENT_RUNES", orInt(fc.Chat.MaxContentRunes, 4000)),
		},
		Assets: AssetConfig{
			ServiceURL:     getenv("ASSET_SERVICE_URL", ""),
			APIKey:         getenv("ASSET_API_KEY", ""),
			UploadTimeout:  getdur("ASSET_UPLOAD_TIMEOUT", 15*time.Second),
			UploadTmpDir:   getenv("UPLOAD_TMP_DIR", os.TempDir()),
			MaxUploadBytes: int64(getint("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Realtime: RealtimeConfig{
			SendBuffer:   getint("WS_SEND_BUFFER", orInt(fc.Realtime.SendBuffer, 64)),
			PingInterval: getdur("WS_PING_INTERVAL", orDur(fc.Realtime.PingInterval, 25*time.Second)),
			WriteTimeout: getdur("WS_WRITE_TIMEOUT", orDur(fc.Realtime.WriteTimeout, 10*time.Second)),
		},
		Retention: RetentionConfig{
			Enabled: getbool("RETENTION_ENABLED", true),
			Cron:    getenv("RETENTION_CRON", "@hourly"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-social-chat"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must be set")
	}
	if cfg.Chat.PageSize < 1 {
		return cfg, errors.New("CHAT_PAGE_SIZE must be >= 1")
	}
	if cfg.Chat.MaxContentRunes < 0 {
		return cfg, errors.New("CHAT_MAX_CONTENT_RUNES must be >= 0")
	}
	if cfg.Assets.UploadTimeout <= 0 {
		return cfg, errors.New("ASSET_UPLOAD_TIMEOUT must be > 0")
	}
	if cfg.Assets.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Realtime.SendBuffer < 1 {
		return cfg, errors.New("WS_SEND_BUFFER must be >= 1")
	}
	if cfg.Realtime.PingInterval <= 0 || cfg.Realtime.WriteTimeout <= 0 {
		return cfg, errors.New("WS_PING_INTERVAL and WS_WRITE_TIMEOUT must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
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

// loadFile reads the optional YAML overlay. An empty path yields zero values.
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if strings.TrimSpace(path) == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse CONFIG_FILE: %w", err)
	}
	return fc, nil
}

// ---- helpers ----

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orDur(v, def time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return def
}

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
