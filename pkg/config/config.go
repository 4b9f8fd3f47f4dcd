package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/platinummonkey/joboost/pkg/observability"
	"github.com/platinummonkey/joboost/pkg/storage"
)

const envPrefix = "JOBOOST_"

// DefaultFranceTravailTokenURL is the France Travail partner token endpoint.
const DefaultFranceTravailTokenURL = "https://entreprise.francetravail.fr/connexion/oauth2/access_token?realm=/partenaire"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Payments      PaymentsConfig
	Credentials   CredentialsConfig
	Auth          AuthConfig
	Generator     GeneratorConfig
	Jobs          JobsConfig
	RateLimit     RateLimitConfig
	Sweeper       SweeperConfig
	Observability ObservabilityConfig
}

// ErrStandaloneSweeper is returned when the standalone sweeper is pointed at
// a backend it cannot share with the server.
var ErrStandaloneSweeper = errors.New("standalone sweeper cannot share a bolt database with the server; the server sweeps in-process on the bolt backend")

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// PaymentsConfig configures Stripe checkout and the plan catalog.
type PaymentsConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string
	Timeout             time.Duration
	// PlansFile is an optional YAML catalog; the built-in catalog is used when empty.
	PlansFile string
}

// CredentialsConfig configures the France Travail client-credentials grant
// used by company search.
type CredentialsConfig struct {
	ClientID         string
	ClientSecret     string
	TokenURL         string
	Scopes           []string
	RefreshMargin    time.Duration
	Timeout          time.Duration
	CompanySearchURL string
}

// AuthConfig configures session token verification.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// GeneratorConfig configures the chat completions API used for documents.
type GeneratorConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// RateLimitConfig bounds payment status polling per user.
type RateLimitConfig struct {
	StatusPollPerMinute int
	StatusPollBurst     int
}

// JobsConfig configures the job offer sources used for recommendations.
type JobsConfig struct {
	JoobleAPIKey  string
	JoobleURL     string
	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaURL     string
	AdzunaCountry string
	Timeout       time.Duration
}

// SweeperConfig configures re-polling of stale pending transactions.
type SweeperConfig struct {
	Schedule  string
	MinAge    time.Duration
	BatchSize int
	// InProcess runs the sweep inside the API server. Always on for bolt.
	InProcess bool
}

// SweepInProcess reports whether the API server should run the sweeper.
// Bolt locks its file exclusively, so only the server process can sweep it.
func (c *Config) SweepInProcess() bool {
	return c.Sweeper.InProcess || c.Storage.Backend == storage.BackendBolt
}

// ValidateStandaloneSweeper checks that a separate sweeper process can open
// the configured store.
func (c *Config) ValidateStandaloneSweeper() error {
	if c.Storage.Backend == storage.BackendBolt {
		return ErrStandaloneSweeper
	}
	return nil
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables. A .env file
// (or the file named by JOBOOST_ENV_FILE) is read first when present; values
// already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Payments:      loadPaymentsConfig(),
		Credentials:   loadCredentialsConfig(),
		Auth:          loadAuthConfig(),
		Generator:     loadGeneratorConfig(),
		Jobs:          loadJobsConfig(),
		RateLimit:     loadRateLimitConfig(),
		Sweeper:       loadSweeperConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadEnvFile() error {
	path := os.Getenv(envPrefix + "ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
		AllowedOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if backend := getEnv("STORAGE_BACKEND", ""); backend != "" {
		cfg.Backend = storage.Backend(strings.ToLower(backend))
	}

	// PostgreSQL config
	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnvList("POSTGRES_REPLICA_URLS", cfg.PostgresReplicaURLs)
	if maxConns := getEnvInt("POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("POSTGRES_TIMEOUT", cfg.PostgresTimeout)

	// Bolt config
	cfg.BoltPath = getEnv("BOLT_PATH", cfg.BoltPath)
	cfg.BoltTimeout = getEnvDuration("BOLT_TIMEOUT", cfg.BoltTimeout)

	// Redis config
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

func loadPaymentsConfig() PaymentsConfig {
	return PaymentsConfig{
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIURL:        getEnv("STRIPE_API_URL", ""),
		Timeout:             getEnvDuration("STRIPE_TIMEOUT", 15*time.Second),
		PlansFile:           getEnv("PLANS_FILE", ""),
	}
}

func loadCredentialsConfig() CredentialsConfig {
	return CredentialsConfig{
		ClientID:         getEnv("FRANCETRAVAIL_CLIENT_ID", ""),
		ClientSecret:     getEnv("FRANCETRAVAIL_CLIENT_SECRET", ""),
		TokenURL:         getEnv("FRANCETRAVAIL_TOKEN_URL", DefaultFranceTravailTokenURL),
		Scopes:           getEnvFields("FRANCETRAVAIL_SCOPES", []string{"api_offresdemploiv2", "api_labonneboitev1"}),
		RefreshMargin:    getEnvDuration("CREDENTIAL_REFRESH_MARGIN", 60*time.Second),
		Timeout:          getEnvDuration("CREDENTIAL_TIMEOUT", 15*time.Second),
		CompanySearchURL: getEnv("LABONNEBOITE_URL", ""),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("JWT_SECRET", ""),
		Issuer:    getEnv("JWT_ISSUER", ""),
	}
}

func loadGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		URL:     getEnv("GENERATOR_URL", ""),
		APIKey:  getEnv("GENERATOR_API_KEY", ""),
		Model:   getEnv("GENERATOR_MODEL", ""),
		Timeout: getEnvDuration("GENERATOR_TIMEOUT", 60*time.Second),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		StatusPollPerMinute: getEnvInt("STATUS_POLL_PER_MINUTE", 30),
		StatusPollBurst:     getEnvInt("STATUS_POLL_BURST", 5),
	}
}

func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule:  getEnv("SWEEPER_SCHEDULE", "@every 5m"),
		MinAge:    getEnvDuration("SWEEPER_MIN_AGE", 10*time.Minute),
		BatchSize: getEnvInt("SWEEPER_BATCH_SIZE", 100),
		InProcess: getEnvBool("SWEEPER_IN_PROCESS", false),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		JoobleAPIKey:  getEnv("JOOBLE_API_KEY", ""),
		JoobleURL:     getEnv("JOOBLE_URL", "https://jooble.org/api"),
		AdzunaAppID:   getEnv("ADZUNA_APP_ID", ""),
		AdzunaAppKey:  getEnv("ADZUNA_APP_KEY", ""),
		AdzunaURL:     getEnv("ADZUNA_URL", "https://api.adzuna.com/v1/api/jobs"),
		AdzunaCountry: getEnv("ADZUNA_COUNTRY", "fr"),
		Timeout:       getEnvDuration("JOBS_TIMEOUT", 10*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "joboost"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 characters")
	}

	if c.Payments.StripeSecretKey != "" && c.Payments.StripeWebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required when a stripe key is configured")
	}

	if (c.Credentials.ClientID == "") != (c.Credentials.ClientSecret == "") {
		return fmt.Errorf("france travail client id and secret must be set together")
	}

	if c.RateLimit.StatusPollPerMinute <= 0 {
		return fmt.Errorf("status poll rate limit must be positive")
	}
	if c.Sweeper.MinAge <= 0 {
		return fmt.Errorf("sweeper min age must be positive")
	}
	if (c.Jobs.AdzunaAppID == "") != (c.Jobs.AdzunaAppKey == "") {
		return fmt.Errorf("adzuna app id and key must be set together")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// OTel returns the OpenTelemetry settings in the form observability expects.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// getEnv returns the JOBOOST_-prefixed environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := getEnv(key, ""); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := getEnv(key, ""); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvFields splits a space-separated environment variable
func getEnvFields(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	return strings.Fields(value)
}
