package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "PAYRECON"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Audit    AuditConfig    `mapstructure:"audit"`

	// ConfigPath is the file the values were read from, if any.
	ConfigPath string `mapstructure:"-"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	HealthTTL         time.Duration `mapstructure:"health_ttl"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type GatewayConfig struct {
	Provider      string        `mapstructure:"provider"`
	BaseURL       string        `mapstructure:"base_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	Currency      string        `mapstructure:"currency"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ReturnURL     string        `mapstructure:"return_url"`
	CancelURL     string        `mapstructure:"cancel_url"`
	BrandName     string        `mapstructure:"brand_name"`
	SubmitRetries int           `mapstructure:"submit_retries"`
	RetryInitial  time.Duration `mapstructure:"retry_initial"`
	RetryMax      time.Duration `mapstructure:"retry_max"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

type PollerConfig struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	MaxElapsed          time.Duration `mapstructure:"max_elapsed"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	ResubmitAfter       time.Duration `mapstructure:"resubmit_after"`
	ResubmitDeadline    time.Duration `mapstructure:"resubmit_deadline"`
}

// PollBound is the longest one poll can run, zero when unbounded.
func (p PollerConfig) PollBound() time.Duration {
	var bound time.Duration
	if p.MaxElapsed > 0 {
		bound = p.MaxElapsed + p.MaxInterval
	}
	if p.MaxAttempts > 0 {
		byAttempts := time.Duration(p.MaxAttempts) * p.MaxInterval
		if bound == 0 || byAttempts < bound {
			bound = byAttempts
		}
	}
	return bound
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.health_ttl", 5*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/payrecon.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("gateway.provider", "fake")
	v.SetDefault("gateway.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("gateway.client_id", "")
	v.SetDefault("gateway.client_secret", "")
	v.SetDefault("gateway.currency", "USD")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.return_url", "http://localhost:8080/deposit/return")
	v.SetDefault("gateway.cancel_url", "http://localhost:8080/deposit/cancel")
	v.SetDefault("gateway.brand_name", "payrecon")
	v.SetDefault("gateway.submit_retries", 3)
	v.SetDefault("gateway.retry_initial", 200*time.Millisecond)
	v.SetDefault("gateway.retry_max", 2*time.Second)
	v.SetDefault("gateway.breaker.failure_threshold", 5)
	v.SetDefault("gateway.breaker.success_threshold", 1)
	v.SetDefault("gateway.breaker.open_timeout", 30*time.Second)

	v.SetDefault("poller.initial_interval", 2*time.Second)
	v.SetDefault("poller.max_interval", time.Minute)
	v.SetDefault("poller.multiplier", 2.0)
	v.SetDefault("poller.randomization_factor", 0.5)
	v.SetDefault("poller.max_elapsed", 30*time.Minute)
	v.SetDefault("poller.max_attempts", 0)
	v.SetDefault("poller.lock_ttl", 35*time.Minute)
	v.SetDefault("poller.sweep_interval", time.Minute)
	v.SetDefault("poller.resubmit_after", time.Minute)
	v.SetDefault("poller.resubmit_deadline", 24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "payrecon_events")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("audit.path", "")
}

// Load reads defaults, then the optional YAML file at path (or
// PAYRECON_CONFIG), then PAYRECON_* environment variables. A .env file in the
// working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "memory":
	case "sqlite", "file":
		if c.Database.Path == "" {
			errs = append(errs, fmt.Errorf("database.path is required for driver %s", c.Database.Driver))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for driver postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.Gateway.Provider {
	case "fake":
	case "paypal":
		if c.Gateway.ClientID == "" || c.Gateway.ClientSecret == "" {
			errs = append(errs, errors.New("gateway.client_id and gateway.client_secret are required for paypal"))
		}
		if c.Gateway.BaseURL == "" {
			errs = append(errs, errors.New("gateway.base_url is required for paypal"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown gateway.provider %q", c.Gateway.Provider))
	}
	if len(c.Gateway.Currency) != 3 {
		errs = append(errs, fmt.Errorf("gateway.currency %q is not an ISO code", c.Gateway.Currency))
	}
	if c.Gateway.SubmitRetries < 0 {
		errs = append(errs, errors.New("gateway.submit_retries must not be negative"))
	}

	if c.Poller.InitialInterval <= 0 {
		errs = append(errs, errors.New("poller.initial_interval must be positive"))
	}
	if c.Poller.MaxInterval < c.Poller.InitialInterval {
		errs = append(errs, errors.New("poller.max_interval must not be below poller.initial_interval"))
	}
	if c.Poller.RandomizationFactor < 0 || c.Poller.RandomizationFactor >= 1 {
		errs = append(errs, errors.New("poller.randomization_factor must be in [0, 1)"))
	}
	if c.Poller.MaxElapsed <= 0 && c.Poller.MaxAttempts <= 0 {
		errs = append(errs, errors.New("poller needs max_elapsed or max_attempts"))
	}
	if bound := c.Poller.PollBound(); c.Poller.LockTTL < bound {
		errs = append(errs, fmt.Errorf("poller.lock_ttl must cover a whole poll (%s)", bound))
	}
	if c.Poller.ResubmitDeadline <= c.Poller.ResubmitAfter {
		errs = append(errs, errors.New("poller.resubmit_deadline must exceed poller.resubmit_after"))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}

	return errors.Join(errs...)
}
