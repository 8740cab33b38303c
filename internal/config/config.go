package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderTripo = "tripo"
	ProviderMeshy = "meshy"

	ArchiveNone     = "none"
	ArchiveSupabase = "supabase"
	ArchiveMinIO    = "minio"
)

type Config struct {
	// Generation provider
	GenerationProvider string `yaml:"generation_provider"`

	// Tripo3D API
	TripoAPIKey       string `yaml:"tripo_api_key"`
	TripoAPIBaseURL   string `yaml:"tripo_api_base_url"`
	TripoModelVersion string `yaml:"tripo_model_version"`
	TripoSTSRegion    string `yaml:"tripo_sts_region"`
	TripoSTSEndpoint  string `yaml:"tripo_sts_endpoint"`

	// Meshy API
	MeshyAPIKey     string `yaml:"meshy_api_key"`
	MeshyAPIBaseURL string `yaml:"meshy_api_base_url"`
	MeshyAIModel    string `yaml:"meshy_ai_model"`

	// Uploads
	InlineUploadLimit int64 `yaml:"inline_upload_limit"`
	MaxUploadBytes    int64 `yaml:"max_upload_bytes"`

	// Relay timing
	PollInterval     time.Duration `yaml:"poll_interval"`
	TimeBudget       time.Duration `yaml:"time_budget"`
	PlatformDeadline time.Duration `yaml:"platform_deadline"`
	DeadlineMargin   time.Duration `yaml:"deadline_margin"`
	MaxUnrecognized  int           `yaml:"max_unrecognized_status"`

	// Outbound calls
	RetryMaxAttempts  int           `yaml:"retry_max_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	ProviderTimeout   time.Duration `yaml:"provider_timeout"`
	ProviderRateLimit float64       `yaml:"provider_rate_limit"`
	ProviderRateBurst int           `yaml:"provider_rate_burst"`

	// Result cache
	RedisURL       string        `yaml:"redis_url"`
	ResultCacheTTL time.Duration `yaml:"result_cache_ttl"`

	// Archive
	ArchiveBackend        string `yaml:"archive_backend"`
	ArchiveMaxBytes       int64  `yaml:"archive_max_bytes"`
	SupabaseURL           string `yaml:"supabase_url"`
	SupabaseServiceKey    string `yaml:"supabase_service_key"`
	SupabaseStorageBucket string `yaml:"supabase_storage_bucket"`
	MinIOEndpoint         string `yaml:"minio_endpoint"`
	MinIOAccessKey        string `yaml:"minio_access_key"`
	MinIOSecretKey        string `yaml:"minio_secret_key"`
	MinIOBucket           string `yaml:"minio_bucket"`
	MinIOUseSSL           bool   `yaml:"minio_use_ssl"`
	MinIOPublicURL        string `yaml:"minio_public_url"`

	// Auth and webhooks
	AuthJWTSecret string `yaml:"auth_jwt_secret"`
	WebhookToken  string `yaml:"webhook_token"`

	// Server
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	Port               string   `yaml:"port"`
	Environment        string   `yaml:"environment"`
	BaseURL            string   `yaml:"base_url"`
	LogLevel           string   `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		GenerationProvider: ProviderTripo,

		TripoAPIBaseURL:   "https://api.tripo3d.ai/v2/openapi",
		TripoModelVersion: "v2.5-20250123",
		TripoSTSRegion:    "us-west-2",

		MeshyAPIBaseURL: "https://api.meshy.ai/openapi/v1",
		MeshyAIModel:    "meshy-5",

		InlineUploadLimit: 100 << 10,
		MaxUploadBytes:    20 << 20,

		PollInterval:     2 * time.Second,
		TimeBudget:       50 * time.Second,
		PlatformDeadline: 55 * time.Second,
		DeadlineMargin:   3 * time.Second,
		MaxUnrecognized:  3,

		RetryMaxAttempts:  3,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
		ProviderTimeout:   30 * time.Second,
		ProviderRateLimit: 5,
		ProviderRateBurst: 5,

		ResultCacheTTL: 24 * time.Hour,

		ArchiveBackend:        ArchiveNone,
		ArchiveMaxBytes:       100 << 20,
		SupabaseStorageBucket: "generated-models",
		MinIOBucket:           "generated-models",

		CORSAllowedOrigins: []string{"*"},
		Port:               "8080",
		Environment:        "development",
		BaseURL:            "http://localhost:8080",
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.GenerationProvider = strings.ToLower(getEnv("GENERATION_PROVIDER", c.GenerationProvider))

	c.TripoAPIKey = getEnv("TRIPO_API_KEY", c.TripoAPIKey)
	c.TripoAPIBaseURL = getEnv("TRIPO_API_BASE_URL", c.TripoAPIBaseURL)
	c.TripoModelVersion = getEnv("TRIPO_MODEL_VERSION", c.TripoModelVersion)
	c.TripoSTSRegion = getEnv("TRIPO_STS_REGION", c.TripoSTSRegion)
	c.TripoSTSEndpoint = getEnv("TRIPO_STS_ENDPOINT", c.TripoSTSEndpoint)

	c.MeshyAPIKey = getEnv("MESHY_API_KEY", c.MeshyAPIKey)
	c.MeshyAPIBaseURL = getEnv("MESHY_API_BASE_URL", c.MeshyAPIBaseURL)
	c.MeshyAIModel = getEnv("MESHY_AI_MODEL", c.MeshyAIModel)

	c.InlineUploadLimit = getEnvInt64("INLINE_UPLOAD_LIMIT", c.InlineUploadLimit)
	c.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)

	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.TimeBudget = getEnvDuration("TIME_BUDGET", c.TimeBudget)
	c.PlatformDeadline = getEnvDuration("PLATFORM_DEADLINE", c.PlatformDeadline)
	c.DeadlineMargin = getEnvDuration("DEADLINE_MARGIN", c.DeadlineMargin)
	c.MaxUnrecognized = getEnvInt("MAX_UNRECOGNIZED_STATUS", c.MaxUnrecognized)

	c.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.RetryInitialDelay = getEnvDuration("RETRY_INITIAL_DELAY", c.RetryInitialDelay)
	c.RetryMaxDelay = getEnvDuration("RETRY_MAX_DELAY", c.RetryMaxDelay)
	c.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", c.ProviderTimeout)
	c.ProviderRateLimit = getEnvFloat("PROVIDER_RATE_LIMIT", c.ProviderRateLimit)
	c.ProviderRateBurst = getEnvInt("PROVIDER_RATE_BURST", c.ProviderRateBurst)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.ResultCacheTTL = getEnvDuration("RESULT_CACHE_TTL", c.ResultCacheTTL)

	c.ArchiveBackend = strings.ToLower(getEnv("ARCHIVE_BACKEND", c.ArchiveBackend))
	c.ArchiveMaxBytes = getEnvInt64("ARCHIVE_MAX_BYTES", c.ArchiveMaxBytes)
	c.SupabaseURL = getEnv("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.SupabaseServiceKey)
	c.SupabaseStorageBucket = getEnv("SUPABASE_STORAGE_BUCKET", c.SupabaseStorageBucket)
	c.MinIOEndpoint = getEnv("MINIO_ENDPOINT", c.MinIOEndpoint)
	c.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIOAccessKey)
	c.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", c.MinIOSecretKey)
	c.MinIOBucket = getEnv("MINIO_BUCKET", c.MinIOBucket)
	c.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", c.MinIOUseSSL)
	c.MinIOPublicURL = getEnv("MINIO_PUBLIC_URL", c.MinIOPublicURL)

	c.AuthJWTSecret = getEnv("AUTH_JWT_SECRET", c.AuthJWTSecret)
	c.WebhookToken = getEnv("WEBHOOK_TOKEN", c.WebhookToken)

	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.CORSAllowedOrigins = splitList(origins)
	}
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects settings the server cannot start with. A missing provider
// API key is not an error here: the server starts and every generation request
// fails with a configuration error.
func (c *Config) Validate() error {
	switch c.GenerationProvider {
	case ProviderTripo, ProviderMeshy:
	default:
		return fmt.Errorf("GENERATION_PROVIDER must be %q or %q, got %q", ProviderTripo, ProviderMeshy, c.GenerationProvider)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.TimeBudget <= 0 {
		return fmt.Errorf("TIME_BUDGET must be positive")
	}
	if c.PlatformDeadline > 0 && c.DeadlineMargin >= c.PlatformDeadline {
		return fmt.Errorf("DEADLINE_MARGIN (%s) must be smaller than PLATFORM_DEADLINE (%s)", c.DeadlineMargin, c.PlatformDeadline)
	}
	if c.DeadlineMargin < 0 {
		return fmt.Errorf("DEADLINE_MARGIN must not be negative")
	}
	if c.MaxUnrecognized < 1 {
		return fmt.Errorf("MAX_UNRECOGNIZED_STATUS must be at least 1")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.InlineUploadLimit <= 0 {
		return fmt.Errorf("INLINE_UPLOAD_LIMIT must be positive")
	}

	switch c.ArchiveBackend {
	case "", ArchiveNone:
	case ArchiveSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required when ARCHIVE_BACKEND=supabase")
		}
		if c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_KEY is required when ARCHIVE_BACKEND=supabase")
		}
	case ArchiveMinIO:
		if c.MinIOEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when ARCHIVE_BACKEND=minio")
		}
		if c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when ARCHIVE_BACKEND=minio")
		}
		if c.MinIOBucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required when ARCHIVE_BACKEND=minio")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be none, supabase or minio, got %q", c.ArchiveBackend)
	}

	return nil
}

// ProviderAPIKey returns the key of the selected generation provider.
func (c *Config) ProviderAPIKey() string {
	if c.GenerationProvider == ProviderMeshy {
		return c.MeshyAPIKey
	}
	return c.TripoAPIKey
}

// RequestDeadline is how long a generation request may run before the hosting
// platform kills it, less the safety margin. Zero means no platform limit.
func (c *Config) RequestDeadline() time.Duration {
	if c.PlatformDeadline <= 0 {
		return 0
	}
	return c.PlatformDeadline - c.DeadlineMargin
}

// EffectiveBudget is TimeBudget capped by RequestDeadline.
func (c *Config) EffectiveBudget() time.Duration {
	if d := c.RequestDeadline(); d > 0 && d < c.TimeBudget {
		return d
	}
	return c.TimeBudget
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
