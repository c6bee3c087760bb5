package config

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName       = "chat-orchestrator"
	defaultServiceVersion    = "1.0.0"
	defaultServicePort       = 8090
	defaultDBHost            = "localhost"
	defaultDBPort            = 5432
	defaultDBUser            = "postgres"
	defaultDBName            = "smarthub"
	defaultDBSSLMode         = "disable"
	defaultDBMaxConns        = 25
	defaultDBMaxIdleConns    = 5
	defaultRedisAddress      = "localhost:6379"
	defaultLogLevel          = "info"
	defaultJobBatchSize      = 50
	defaultJobMaxAttempts    = 3
	defaultJobPollInterval   = 15 * time.Second
	defaultJobRetentionDays  = 7
	defaultExpRefreshPeriod  = 5 * time.Minute
	defaultWebhookRatePerMin = 120
	defaultSendRPS           = 10
	defaultLLMTimeout        = 30 * time.Second
)

// Config holds all configuration for the chat orchestrator service.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Breakers    BreakersConfig    `yaml:"breakers"`
	Retry       RetryConfig       `yaml:"retry"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Experiments ExperimentsConfig `yaml:"experiments"`
	LLM         LLMConfig         `yaml:"llm"`
	Social      SocialConfig      `yaml:"social"`
	Payment     PaymentConfig     `yaml:"payment"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"ORCHESTRATOR_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"         yaml:"debug"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN builds a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// BreakerConfig holds thresholds for one named circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

// BreakersConfig holds per-dependency circuit breaker settings. The LLM,
// payment gateway, and database tolerate failure very differently, so each
// gets its own thresholds.
type BreakersConfig struct {
	LLM      BreakerConfig `yaml:"llm"`
	Payment  BreakerConfig `yaml:"payment"`
	Database BreakerConfig `yaml:"database"`
}

// RetryConfig holds in-process retry/backoff settings.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// JobsConfig holds webhook job queue settings.
type JobsConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	MaxAttempts   int           `yaml:"max_attempts"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetentionDays int           `yaml:"retention_days"`
}

// ExperimentsConfig holds A/B test cache settings.
type ExperimentsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// LLMConfig holds the LLM completion collaborator settings.
type LLMConfig struct {
	BaseURL string        `env:"LLM_BASE_URL" yaml:"base_url"`
	APIKey  string        `env:"LLM_API_KEY"  yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SocialConfig holds the Graph-API-shaped social collaborator settings.
type SocialConfig struct {
	GraphBaseURL    string `env:"GRAPH_BASE_URL"        yaml:"graph_base_url"`
	VerifyToken     string `env:"WEBHOOK_VERIFY_TOKEN"  yaml:"verify_token"`
	PageAccessToken string `env:"PAGE_ACCESS_TOKEN"     yaml:"page_access_token"`
	SendRPS         int    `yaml:"send_rps"`
	SendBurst       int    `yaml:"send_burst"`
}

// PaymentConfig holds the payment gateway collaborator settings.
type PaymentConfig struct {
	BaseURL  string `env:"PAYMENT_BASE_URL"  yaml:"base_url"`
	Username string `env:"PAYMENT_USERNAME"  yaml:"username"`
	Password string `env:"PAYMENT_PASSWORD"  yaml:"password"`
}

// RateLimitConfig holds per-IP webhook rate limiting settings.
type RateLimitConfig struct {
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
}

// Load loads configuration from the given path, applies defaults, then
// re-applies environment overrides (env always wins).
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Validate checks configuration invariants that defaults cannot fix.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", c.Service.Port)
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry multiplier must be >= 1")
	}
	if c.Jobs.MaxAttempts <= 0 {
		return errors.New("jobs max_attempts must be positive")
	}
	return nil
}

func (c *Config) setDefaults() {
	s := &c.Service
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}

	d := &c.Database
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = time.Hour
	}

	if c.Redis.Address == "" {
		c.Redis.Address = defaultRedisAddress
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	setBreakerDefaults(&c.Breakers)
	setRetryDefaults(&c.Retry)

	j := &c.Jobs
	if j.BatchSize == 0 {
		j.BatchSize = defaultJobBatchSize
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = defaultJobMaxAttempts
	}
	if j.PollInterval == 0 {
		j.PollInterval = defaultJobPollInterval
	}
	if j.RetentionDays == 0 {
		j.RetentionDays = defaultJobRetentionDays
	}

	if c.Experiments.RefreshInterval == 0 {
		c.Experiments.RefreshInterval = defaultExpRefreshPeriod
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = defaultLLMTimeout
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.0-flash"
	}
	if c.Social.GraphBaseURL == "" {
		c.Social.GraphBaseURL = "https://graph.facebook.com/v21.0"
	}
	if c.Social.SendRPS == 0 {
		c.Social.SendRPS = defaultSendRPS
	}
	if c.Social.SendBurst == 0 {
		c.Social.SendBurst = c.Social.SendRPS
	}
	if c.RateLimit.MaxRequestsPerMinute == 0 {
		c.RateLimit.MaxRequestsPerMinute = defaultWebhookRatePerMin
	}
}

// setBreakerDefaults reflects each dependency's failure tolerance: the LLM
// overloads often and recovers fast, payments are strict, the database is
// in-between but monitored over a longer window.
func setBreakerDefaults(b *BreakersConfig) {
	if b.LLM.FailureThreshold == 0 {
		b.LLM = BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			MonitoringPeriod: time.Minute,
		}
	}
	if b.Payment.FailureThreshold == 0 {
		b.Payment = BreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 3,
			Timeout:          2 * time.Minute,
			MonitoringPeriod: 5 * time.Minute,
		}
	}
	if b.Database.FailureThreshold == 0 {
		b.Database = BreakerConfig{
			FailureThreshold: 10,
			SuccessThreshold: 2,
			Timeout:          15 * time.Second,
			MonitoringPeriod: 2 * time.Minute,
		}
	}
}

func setRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = 500 * time.Millisecond
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	}
}
