// Package config loads runtime configuration from environment variables.
//
// Struct fields declare their own wiring through tags: env names the
// variable, envAlt a fallback, default the value used when neither is set,
// and required marks variables that must be present. The loader walks the
// struct reflectively so adding a setting means adding a field.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL" envAlt:"POSTGRES_URL" required:"true"`
	MaxConns int    `env:"DATABASE_MAX_CONNS" default:"10"`
	Migrate  bool   `env:"DATABASE_MIGRATE" default:"true"`
}

type ImportConfig struct {
	MaxConcurrent   int           `env:"IMPORT_MAX_CONCURRENT" default:"4"`
	MaxWait         time.Duration `env:"IMPORT_MAX_WAIT" default:"5s"`
	MaxBackdateDays int           `env:"IMPORT_MAX_BACKDATE_DAYS" default:"60"`
	PeriodStartDay  string        `env:"IMPORT_PERIOD_START_DAY" default:"monday"`
	DeadlineGrace   time.Duration `env:"IMPORT_DEADLINE_GRACE" default:"48h"`
	WarningWindow   time.Duration `env:"IMPORT_WARNING_WINDOW" default:"24h"`
	MaxBodyBytes    int64         `env:"IMPORT_MAX_BODY_BYTES" default:"1048576"`
}

// StartWeekday resolves the configured period start day.
func (i ImportConfig) StartWeekday() (time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	day, ok := days[strings.ToLower(i.PeriodStartDay)]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", i.PeriodStartDay)
	}
	return day, nil
}

type RateConfig struct {
	Enabled   bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	PerMinute int  `env:"RATE_LIMIT_PER_MINUTE" default:"60"`
	Burst     int  `env:"RATE_LIMIT_BURST" default:"20"`
}

type AuthConfig struct {
	// Users holds comma-separated apikey:uuid:name triples.
	Users string `env:"API_USERS" required:"true"`
}

// Credential is one parsed API_USERS triple.
type Credential struct {
	APIKey string
	UserID uuid.UUID
	Name   string
}

// Credentials parses the API_USERS value.
func (a AuthConfig) Credentials() ([]Credential, error) {
	var creds []Credential
	for _, triple := range strings.Split(a.Users, ",") {
		triple = strings.TrimSpace(triple)
		if triple == "" {
			continue
		}
		parts := strings.SplitN(triple, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("API_USERS entry %q is not apikey:uuid:name", triple)
		}
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("API_USERS entry %q has a bad uuid: %w", triple, err)
		}
		key := strings.TrimSpace(parts[0])
		if len(key) < 16 {
			return nil, fmt.Errorf("API_USERS entry %q has a key shorter than 16 characters", triple)
		}
		creds = append(creds, Credential{APIKey: key, UserID: id, Name: strings.TrimSpace(parts[2])})
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("API_USERS defines no credentials")
	}
	return creds, nil
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"json"`
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port)
	}
	if c.Import.MaxConcurrent < 1 {
		return fmt.Errorf("IMPORT_MAX_CONCURRENT must be at least 1")
	}
	if c.Import.MaxBackdateDays < 0 {
		return fmt.Errorf("IMPORT_MAX_BACKDATE_DAYS must not be negative")
	}
	if _, err := c.Import.StartWeekday(); err != nil {
		return fmt.Errorf("IMPORT_PERIOD_START_DAY: %w", err)
	}
	if _, err := c.Auth.Credentials(); err != nil {
		return err
	}
	if c.Rate.Enabled && c.Rate.PerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be at least 1 when rate limiting is on")
	}
	return nil
}
