package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Logging     LoggingConfig   `yaml:"logging"`
	Detection   DetectionConfig `yaml:"detection"`
	Leads       LeadConfig      `yaml:"leads"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Dispatch    DispatchConfig  `yaml:"dispatch"`
	Signals     SignalsConfig   `yaml:"signals"`
}

// IsProduction reports whether real deliveries and live signals are enabled.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	APIKey         string   `yaml:"api_key"` // empty disables /api auth
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the HTTP listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// Lifetime returns the connection max lifetime as a duration
func (c DatabaseConfig) Lifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// RedisConfig holds Redis settings. An empty URL disables Redis and the
// scheduler lease falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds log level and redaction settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// DetectionConfig holds the scoring thresholds
type DetectionConfig struct {
	MinDaysAfterSwap        int     `yaml:"min_days_after_swap"`
	MaxActivationWindowDays int     `yaml:"max_activation_window_days"`
	MinDaysBetweenContacts  int     `yaml:"min_days_between_contacts"`
	MaxSwaps30dThreshold    int     `yaml:"max_swaps_30d_threshold"`
	SendThreshold           float64 `yaml:"send_threshold"`
	DecayHorizonDays        int     `yaml:"decay_horizon_days"`
	MaxPriorContacts        int     `yaml:"max_prior_contacts"`
	ContactCooldownDays     int     `yaml:"contact_cooldown_days"`
}

// LeadConfig holds lead lifetime settings
type LeadConfig struct {
	TTLDays            int `yaml:"ttl_days"`
	EventRetentionDays int `yaml:"event_retention_days"`
	PurgeBatchSize     int `yaml:"purge_batch_size"`
}

// TTL returns the lead lifetime as a duration
func (c LeadConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// EventRetention returns how long processed events are kept
func (c LeadConfig) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

// SchedulerConfig holds the daily refresh and reaper settings
type SchedulerConfig struct {
	RunAt                string `yaml:"run_at"` // local wall clock, "HH:MM"
	StaleBatchSize       int    `yaml:"stale_batch_size"`
	LockTTLMinutes       int    `yaml:"lock_ttl_minutes"`
	ReaperIntervalMinute int    `yaml:"reaper_interval_minutes"`
	Timezone             string `yaml:"timezone"` // IANA name; lead days and run_at use it
}

// LockTTL returns the refresh lease TTL as a duration
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// ReaperInterval returns how often the TTL reaper runs
func (c SchedulerConfig) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalMinute) * time.Minute
}

// Location loads Timezone. Empty selects the process local zone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RunAtClock parses RunAt into hour and minute.
func (c SchedulerConfig) RunAtClock() (int, int, error) {
	t, err := time.Parse("15:04", c.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid scheduler.run_at %q: %w", c.RunAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// DispatchConfig holds campaign delivery settings
type DispatchConfig struct {
	TrackingURL     string        `yaml:"tracking_url"`
	LandingURL      string        `yaml:"landing_url"` // click redirect target
	SigningKey      string        `yaml:"signing_key"`
	MockSuccessRate float64       `yaml:"mock_success_rate"`
	SES             SESConfig     `yaml:"ses"`
	Gateway         GatewayConfig `yaml:"gateway"`
}

// SESConfig holds AWS SES API configuration for the email channel
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// GatewayConfig holds the HTTP gateway used for the sms and push channels
type GatewayConfig struct {
	SMSURL         string `yaml:"sms_url"`
	PushURL        string `yaml:"push_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SignalsConfig holds network signal adapter settings
type SignalsConfig struct {
	Mode           string   `yaml:"mode"` // "stub" or "live"
	BaseURL        string   `yaml:"base_url"`
	TokenURL       string   `yaml:"token_url"`
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	Scopes         []string `yaml:"scopes"`
	MaxAgeHours    int      `yaml:"max_age_hours"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
	HashSalt       string   `yaml:"hash_salt"`
	CountryCode    string   `yaml:"country_code"`
}

// Timeout returns the configured timeout as a duration
func (c SignalsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for callers
// that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Detection defaults
	if cfg.Detection.MinDaysAfterSwap == 0 {
		cfg.Detection.MinDaysAfterSwap = 3
	}
	if cfg.Detection.MaxActivationWindowDays == 0 {
		cfg.Detection.MaxActivationWindowDays = 14
	}
	if cfg.Detection.MinDaysBetweenContacts == 0 {
		cfg.Detection.MinDaysBetweenContacts = 14
	}
	if cfg.Detection.MaxSwaps30dThreshold == 0 {
		cfg.Detection.MaxSwaps30dThreshold = 2
	}
	if cfg.Detection.SendThreshold == 0 {
		cfg.Detection.SendThreshold = 0.6
	}
	if cfg.Detection.DecayHorizonDays == 0 {
		cfg.Detection.DecayHorizonDays = 90
	}
	if cfg.Detection.MaxPriorContacts == 0 {
		cfg.Detection.MaxPriorContacts = 3
	}
	if cfg.Detection.ContactCooldownDays == 0 {
		cfg.Detection.ContactCooldownDays = 7
	}

	// Lead lifetime defaults
	if cfg.Leads.TTLDays == 0 {
		cfg.Leads.TTLDays = 30
	}
	if cfg.Leads.EventRetentionDays == 0 {
		cfg.Leads.EventRetentionDays = 30
	}
	if cfg.Leads.PurgeBatchSize == 0 {
		cfg.Leads.PurgeBatchSize = 5000
	}

	// Scheduler defaults
	if cfg.Scheduler.RunAt == "" {
		cfg.Scheduler.RunAt = "03:00"
	}
	if cfg.Scheduler.StaleBatchSize == 0 {
		cfg.Scheduler.StaleBatchSize = 500
	}
	if cfg.Scheduler.LockTTLMinutes == 0 {
		cfg.Scheduler.LockTTLMinutes = 60
	}
	if cfg.Scheduler.ReaperIntervalMinute == 0 {
		cfg.Scheduler.ReaperIntervalMinute = 60
	}

	// Dispatch defaults
	if cfg.Dispatch.TrackingURL == "" {
		cfg.Dispatch.TrackingURL = "https://track.example.com"
	}
	if cfg.Dispatch.MockSuccessRate == 0 {
		cfg.Dispatch.MockSuccessRate = 0.9
	}
	if cfg.Dispatch.SES.Region == "" {
		cfg.Dispatch.SES.Region = "eu-west-1"
	}
	if cfg.Dispatch.Gateway.TimeoutSeconds == 0 {
		cfg.Dispatch.Gateway.TimeoutSeconds = 10
	}
	if cfg.Dispatch.Gateway.MaxRetries == 0 {
		cfg.Dispatch.Gateway.MaxRetries = 3
	}

	// Signal adapter defaults
	if cfg.Signals.Mode == "" {
		cfg.Signals.Mode = "stub"
	}
	if cfg.Signals.CountryCode == "" {
		cfg.Signals.CountryCode = "33"
	}
	if cfg.Signals.MaxAgeHours == 0 {
		cfg.Signals.MaxAgeHours = 720
	}
	if cfg.Signals.TimeoutSeconds == 0 {
		cfg.Signals.TimeoutSeconds = 15
	}
	if cfg.Signals.MaxRetries == 0 {
		cfg.Signals.MaxRetries = 3
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// A missing config file is not an error; defaults are used instead.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Environment = v
	}
	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TZ_NAME"); v != "" {
		cfg.Scheduler.Timezone = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Dispatch overrides
	if v := os.Getenv("TRACKING_URL"); v != "" {
		cfg.Dispatch.TrackingURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("LANDING_URL"); v != "" {
		cfg.Dispatch.LandingURL = v
	}
	if v := os.Getenv("SIGNING_KEY"); v != "" {
		cfg.Dispatch.SigningKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Dispatch.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Dispatch.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Dispatch.SES.Region = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		cfg.Dispatch.Gateway.APIKey = v
	}

	// Signal adapter overrides
	if v := os.Getenv("SIGNALS_MODE"); v != "" {
		cfg.Signals.Mode = v
	}
	if v := os.Getenv("CAMARA_BASE_URL"); v != "" {
		cfg.Signals.BaseURL = v
	}
	if v := os.Getenv("CAMARA_TOKEN_URL"); v != "" {
		cfg.Signals.TokenURL = v
	}
	if v := os.Getenv("CAMARA_CLIENT_ID"); v != "" {
		cfg.Signals.ClientID = v
	}
	if v := os.Getenv("CAMARA_CLIENT_SECRET"); v != "" {
		cfg.Signals.ClientSecret = v
	}
	if v := os.Getenv("LINE_HASH_SALT"); v != "" {
		cfg.Signals.HashSalt = v
	}

	return cfg, nil
}
