package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig is optional. Without a URL the launch lock, job cache and
// outbound call budget are disabled.
type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// BotConfig drives the Telegram operator notifier. Empty token disables it.
type BotConfig struct {
	Token           string  `yaml:"token" env:"BOT_TOKEN"`
	OperatorChatIDs []int64 `yaml:"operator_chat_ids" env:"BOT_OPERATOR_CHAT_IDS" envSeparator:","`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer"`
}

type AdPlatformConfig struct {
	Driver         string        `yaml:"driver" env:"ADPLATFORM_DRIVER"` // http|sandbox
	SandboxURL     string        `yaml:"sandbox_url"`
	LiveURL        string        `yaml:"live_url"`
	AccessToken    string        `yaml:"access_token" env:"ADPLATFORM_ACCESS_TOKEN"`
	Currency       string        `yaml:"currency"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
	CallsPerMinute int           `yaml:"calls_per_minute"` // per advertiser, across instances
}

type DelaysConfig struct {
	AvatarToPrimary time.Duration `yaml:"avatar_to_primary"`
	BeforePoster    time.Duration `yaml:"before_poster"`
	InterStep       time.Duration `yaml:"inter_step"`
	BaseStep        time.Duration `yaml:"base_step"`
	AfterRateLimit  time.Duration `yaml:"after_rate_limit"`
	AssetStepFloor  time.Duration `yaml:"asset_step_floor"`
}

type ClassifierConfig struct {
	RateLimitMarkers          []string       `yaml:"rate_limit_markers"`
	RateLimitCodes            []int          `yaml:"rate_limit_codes"`
	StateInconsistencyMarkers []string       `yaml:"state_inconsistency_markers"`
	ManualCheckMarkers        []string       `yaml:"manual_check_markers"`
	RetryMinutes              map[string]int `yaml:"retry_minutes"`
	DefaultRetryMinutes       int            `yaml:"default_retry_minutes"`
}

type EngineConfig struct {
	Workers             int              `yaml:"workers" env:"ENGINE_WORKERS"`
	Queue               int              `yaml:"queue"`
	LockTTL             time.Duration    `yaml:"lock_ttl"`
	MaxRateLimitRetries int              `yaml:"max_rate_limit_retries"`
	Delays              DelaysConfig     `yaml:"delays"`
	Classifier          ClassifierConfig `yaml:"classifier"`
}

type SchedulerConfig struct {
	ResumeCron  string `yaml:"resume_cron" env:"RESUME_CRON"`
	ResumeBatch int    `yaml:"resume_batch"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Bot        BotConfig        `yaml:"bot"`
	Auth       AuthConfig       `yaml:"auth"`
	AdPlatform AdPlatformConfig `yaml:"adplatform"`
	Engine     EngineConfig     `yaml:"engine"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads the YAML file at path, loads .env if present and lets the
// environment override secrets and endpoints. A missing file is allowed when
// everything required comes from the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	c.HTTP.ReadTimeout = orDuration(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = orDuration(c.HTTP.WriteTimeout, 30*time.Second)
	c.HTTP.RequestTimeout = orDuration(c.HTTP.RequestTimeout, 20*time.Second)
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = orDuration(c.Redis.TTL, 10*time.Minute)

	if c.AdPlatform.Driver == "" {
		c.AdPlatform.Driver = "http"
	}
	if c.AdPlatform.Currency == "" {
		c.AdPlatform.Currency = "USD"
	}
	c.AdPlatform.Timeout = orDuration(c.AdPlatform.Timeout, 30*time.Second)
	if c.AdPlatform.RequestsPerSec <= 0 {
		c.AdPlatform.RequestsPerSec = 2
	}
	if c.AdPlatform.Burst <= 0 {
		c.AdPlatform.Burst = 1
	}
	if c.AdPlatform.CallsPerMinute <= 0 {
		c.AdPlatform.CallsPerMinute = 30
	}

	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 16
	}
	if c.Engine.Queue <= 0 {
		c.Engine.Queue = c.Engine.Workers * 4
	}
	c.Engine.LockTTL = orDuration(c.Engine.LockTTL, 30*time.Minute)
	if c.Engine.MaxRateLimitRetries <= 0 {
		c.Engine.MaxRateLimitRetries = 3
	}

	if c.Scheduler.ResumeCron == "" {
		c.Scheduler.ResumeCron = "@every 1m"
	}
	if c.Scheduler.ResumeBatch <= 0 {
		c.Scheduler.ResumeBatch = 100
	}
}

// Validate enforces the minimum needed to start the service.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.AdPlatform.Driver {
	case "sandbox":
	case "http":
		if c.AdPlatform.SandboxURL == "" {
			errs = append(errs, errors.New("adplatform.sandbox_url is required"))
		}
		if c.AdPlatform.AccessToken == "" {
			errs = append(errs, errors.New("adplatform.access_token is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("adplatform.driver %q is not one of http|sandbox", c.AdPlatform.Driver))
	}
	if c.Bot.Token != "" && len(c.Bot.OperatorChatIDs) == 0 {
		errs = append(errs, errors.New("bot.operator_chat_ids is required when bot.token is set"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json|console", c.Log.Format))
	}
	return errors.Join(errs...)
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
