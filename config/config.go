// Package config reads process configuration from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config is the full process configuration.
type Config struct {
	GuildID        string `env:"GUILD_ID"`
	MemberRoleID   string `env:"ROLE_ID"`
	SeedRoleID     string `env:"SEED_ROLE_ID"`
	ActivityRoleID string `env:"ACTIVITY_ROLE_ID"`

	// HoursThreshold has no default; it is required with ACTIVITY_ROLE_ID.
	HoursThreshold   float64 `env:"HOURS_THRESHOLD"`
	HoursPlayedWeeks int     `env:"HOURS_PLAYED_WEEKS" envDefault:"1"`

	// TimerDuration and SleepDuration are whole seconds.
	TimerDuration int    `env:"TIMER_DURATION" envDefault:"1209600"`
	SleepDuration int    `env:"SLEEP_DURATION" envDefault:"60"`
	Schedule      string `env:"SCHEDULE"`

	RewardCategory      string `env:"REWARD_CATEGORY" envDefault:"seeding_tracker"`
	DefaultRewardPoints int    `env:"DEFAULT_REWARD_POINTS" envDefault:"115"`

	API       API
	RateLimit RateLimit
	Mongo     Mongo
	SQL       SQL
	Timers    Timers
	Log       Log

	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	StatusAddr string `env:"STATUS_ADDR"`
}

type API struct {
	URL string `env:"API_URL"`
	// Backend is "http" for the role API service or "discord" for the
	// platform API directly.
	Backend string        `env:"API_BACKEND" envDefault:"http"`
	Token   string        `env:"API_TOKEN"`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
}

type RateLimit struct {
	Calls   int           `env:"RATE_LIMIT_CALLS" envDefault:"4"`
	Period  time.Duration `env:"RATE_LIMIT_PERIOD" envDefault:"1s"`
	Backend string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
}

type Mongo struct {
	URI              string `env:"MONGODB_URI"`
	Username         string `env:"MONGODB_USERNAME"`
	Password         string `env:"MONGODB_PASSWORD"`
	Host             string `env:"MONGODB_HOST" envDefault:"localhost"`
	Port             int    `env:"MONGODB_PORT" envDefault:"27017"`
	Database         string `env:"DATABASE_NAME" envDefault:"admin"`
	Collection       string `env:"COLLECTION_NAME" envDefault:"players"`
	ConfigCollection string `env:"CONFIG_COLLECTION" envDefault:"configs"`
}

type SQL struct {
	// Driver is "mysql" or "postgres".
	Driver   string `env:"SQL_DRIVER" envDefault:"mysql"`
	DSN      string `env:"SQL_DSN"`
	Host     string `env:"SQL_HOST"`
	Port     int    `env:"SQL_PORT"`
	Username string `env:"SQL_USERNAME"`
	Password string `env:"SQL_PASSWORD"`
	Database string `env:"SQL_DATABASE"`
	Schema   string `env:"SQL_SCHEMA" envDefault:"public"`
}

type Timers struct {
	// Store is "sqlite", "redis" or "memory".
	Store  string `env:"TIMER_STORE" envDefault:"sqlite"`
	DBPath string `env:"TIMER_DB_PATH" envDefault:"timers.db"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
	// File enables a rotating log file next to stderr.
	File        string `env:"LOG_FILE"`
	MaxBytes    int    `env:"LOG_MAX_BYTES" envDefault:"1000000"`
	BackupCount int    `env:"LOG_BACKUP_COUNT" envDefault:"5"`
}

// Load reads the given dotenv files (default ".env"), skipping missing ones,
// then parses the environment. Variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads Config from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.GuildID) == "":
		return errors.New("GUILD_ID is required")
	case strings.TrimSpace(c.MemberRoleID) == "":
		return errors.New("ROLE_ID is required")
	case strings.TrimSpace(c.SeedRoleID) == "":
		return errors.New("SEED_ROLE_ID is required")
	case c.TimerDuration <= 0:
		return errors.New("TIMER_DURATION must be positive")
	case c.Schedule == "" && c.SleepDuration <= 0:
		return errors.New("SLEEP_DURATION must be positive")
	case c.HoursThreshold < 0:
		return errors.New("HOURS_THRESHOLD must not be negative")
	case c.ActivityRoleID != "" && c.HoursThreshold <= 0:
		return errors.New("HOURS_THRESHOLD must be positive when ACTIVITY_ROLE_ID is set")
	case c.ActivityRoleID != "" && c.HoursPlayedWeeks <= 0:
		return errors.New("HOURS_PLAYED_WEEKS must be positive")
	case c.RateLimit.Calls <= 0 || c.RateLimit.Period <= 0:
		return errors.New("RATE_LIMIT_CALLS and RATE_LIMIT_PERIOD must be positive")
	}

	switch c.API.Backend {
	case "http":
		if c.API.URL == "" {
			return errors.New("API_URL is required for the http backend")
		}
	case "discord":
		if c.API.Token == "" {
			return errors.New("API_TOKEN is required for the discord backend")
		}
	default:
		return fmt.Errorf("unknown API_BACKEND %q", c.API.Backend)
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}
	switch c.Timers.Store {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown TIMER_STORE %q", c.Timers.Store)
	}
	if c.ActivityRoleID != "" && c.SQL.Driver != "mysql" && c.SQL.Driver != "postgres" {
		return fmt.Errorf("unknown SQL_DRIVER %q", c.SQL.Driver)
	}
	if _, err := c.CronSchedule(); err != nil {
		return err
	}
	return nil
}

func (c Config) GracePeriod() time.Duration {
	return time.Duration(c.TimerDuration) * time.Second
}

func (c Config) HoursWindow() time.Duration {
	return time.Duration(c.HoursPlayedWeeks) * 7 * 24 * time.Hour
}

// CronSchedule returns SCHEDULE when set (any standard cron expression,
// including "@every 5m"), otherwise a fixed SLEEP_DURATION delay.
func (c Config) CronSchedule() (cron.Schedule, error) {
	if s := strings.TrimSpace(c.Schedule); s != "" {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return nil, fmt.Errorf("parse SCHEDULE: %w", err)
		}
		return sched, nil
	}
	return cron.Every(time.Duration(c.SleepDuration) * time.Second), nil
}

// ConnectionURI returns MONGODB_URI, or builds one from the individual parts.
func (m Mongo) ConnectionURI() string {
	if m.URI != "" {
		return m.URI
	}
	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(m.Host, strconv.Itoa(m.Port))}
	if m.Username != "" {
		u.User = url.UserPassword(m.Username, m.Password)
	}
	return u.String()
}

// PostgresDSN returns SQL_DSN, or builds a postgres URL from the parts.
func (s SQL) PostgresDSN() string {
	if s.DSN != "" {
		return s.DSN
	}
	port := s.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(port)),
		Path:   "/" + s.Database,
	}
	if s.Username != "" {
		u.User = url.UserPassword(s.Username, s.Password)
	}
	return u.String()
}
