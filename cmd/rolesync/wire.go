package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/rolesync/config"
	"github.com/PaulFidika/rolesync/core"
	memorylimiter "github.com/PaulFidika/rolesync/ratelimit/memory"
	redislimiter "github.com/PaulFidika/rolesync/ratelimit/redis"
	"github.com/PaulFidika/rolesync/roleclient"
	mysqlsource "github.com/PaulFidika/rolesync/sources/mysql"
	pgsource "github.com/PaulFidika/rolesync/sources/postgres"
	memorystore "github.com/PaulFidika/rolesync/storage/memory"
	redisstore "github.com/PaulFidika/rolesync/storage/redis"
	sqlitestore "github.com/PaulFidika/rolesync/storage/sqlite"
)

// resources closes what run opened, in reverse order.
type resources struct {
	names   []string
	closers []func() error
}

func (r *resources) add(name string, fn func() error) {
	r.names = append(r.names, name)
	r.closers = append(r.closers, fn)
}

func (r *resources) closeAll(log logrus.FieldLogger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.WithError(err).Warnf("close %s", r.names[i])
		}
	}
}

// redis connects only when a component is configured to use it.
func (r *resources) redis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Timers.Store != "redis" && cfg.RateLimit.Backend != "redis" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	r.add("redis", rdb.Close)
	return rdb, nil
}

func openTimerStore(ctx context.Context, cfg config.Config, rdb *redis.Client, res *resources) (core.TimerStore, error) {
	switch cfg.Timers.Store {
	case "redis":
		return redisstore.NewTimerStore(rdb, ""), nil
	case "memory":
		return memorystore.NewTimerStore(), nil
	default:
		st, err := sqlitestore.Open(ctx, cfg.Timers.DBPath)
		if err != nil {
			return nil, err
		}
		res.add("timer store", st.Close)
		return st, nil
	}
}

func newGate(cfg config.RateLimit, rdb *redis.Client) roleclient.Gate {
	if cfg.Backend == "redis" && rdb != nil {
		return redislimiter.New(rdb, "", redislimiter.Limit{Limit: cfg.Calls, Window: cfg.Period})
	}
	return memorylimiter.New(memorylimiter.Limit{Limit: cfg.Calls, Window: cfg.Period})
}

func newBackend(cfg config.API) (roleclient.Backend, error) {
	if cfg.Backend == "discord" {
		return roleclient.NewDiscordBackend(roleclient.DiscordConfig{BaseURL: cfg.URL, BotToken: cfg.Token, Timeout: cfg.Timeout})
	}
	return roleclient.NewHTTPBackend(roleclient.HTTPConfig{BaseURL: cfg.URL, Token: cfg.Token, Timeout: cfg.Timeout})
}

// openHoursSource returns a nil source when the activity role is disabled.
func openHoursSource(ctx context.Context, cfg config.Config, res *resources) (core.HoursSource, error) {
	if cfg.ActivityRoleID == "" {
		return nil, nil
	}
	if cfg.SQL.Driver == "postgres" {
		pool, err := pgsource.Connect(ctx, cfg.SQL.PostgresDSN())
		if err != nil {
			return nil, err
		}
		res.add("postgres", func() error { pool.Close(); return nil })
		return pgsource.NewHoursStore(pool, cfg.SQL.Schema), nil
	}
	st, err := mysqlsource.Open(ctx, mysqlsource.Config{
		DSN:      cfg.SQL.DSN,
		Host:     cfg.SQL.Host,
		Port:     cfg.SQL.Port,
		User:     cfg.SQL.Username,
		Password: cfg.SQL.Password,
		Database: cfg.SQL.Database,
	})
	if err != nil {
		return nil, err
	}
	res.add("mysql", st.Close)
	return st, nil
}
