package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type MetricsConfig struct {
	Addr string
}

type RaceConfig struct {
	HoldWindowStandard time.Duration
	HoldWindowUrgent   time.Duration
	SweepInterval      time.Duration
}

type MatcherConfig struct {
	CategoryWeight float64
	KeywordWeight  float64
	WorkloadWeight float64
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	NATS        NATSConfig
	Metrics     MetricsConfig
	Race        RaceConfig
	Matcher     MatcherConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("METRICS_ADDR"),
		},
		Race: RaceConfig{
			HoldWindowStandard: v.GetDuration("HOLD_WINDOW_STANDARD"),
			HoldWindowUrgent:   v.GetDuration("HOLD_WINDOW_URGENT"),
			SweepInterval:      v.GetDuration("HOLD_SWEEP_INTERVAL"),
		},
		Matcher: MatcherConfig{
			CategoryWeight: v.GetFloat64("MATCHER_CATEGORY_WEIGHT"),
			KeywordWeight:  v.GetFloat64("MATCHER_KEYWORD_WEIGHT"),
			WorkloadWeight: v.GetFloat64("MATCHER_WORKLOAD_WEIGHT"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "notify"
	}
	if cfg.Race.HoldWindowStandard == 0 {
		cfg.Race.HoldWindowStandard = 24 * time.Hour
	}
	if cfg.Race.HoldWindowUrgent == 0 {
		cfg.Race.HoldWindowUrgent = 4 * time.Hour
	}
	if cfg.Race.SweepInterval == 0 {
		cfg.Race.SweepInterval = 5 * time.Minute
	}
	if cfg.Matcher.CategoryWeight == 0 && cfg.Matcher.KeywordWeight == 0 && cfg.Matcher.WorkloadWeight == 0 {
		cfg.Matcher.CategoryWeight = 0.5
		cfg.Matcher.KeywordWeight = 0.3
		cfg.Matcher.WorkloadWeight = 0.2
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Race.HoldWindowUrgent > cfg.Race.HoldWindowStandard {
		return fmt.Errorf("HOLD_WINDOW_URGENT must not exceed HOLD_WINDOW_STANDARD")
	}
	return nil
}

// HoldWindow returns the hold-acquisition window for an urgency tier.
func (c *Config) HoldWindow(urgent bool) time.Duration {
	if urgent {
		return c.Race.HoldWindowUrgent
	}
	return c.Race.HoldWindowStandard
}
