package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/rolesync/config"
	"github.com/PaulFidika/rolesync/policy"
	memorylimiter "github.com/PaulFidika/rolesync/ratelimit/memory"
	redislimiter "github.com/PaulFidika/rolesync/ratelimit/redis"
	"github.com/PaulFidika/rolesync/roleclient"
	memorystore "github.com/PaulFidika/rolesync/storage/memory"
	redisstore "github.com/PaulFidika/rolesync/storage/redis"
	sqlitestore "github.com/PaulFidika/rolesync/storage/sqlite"
)

func TestOpenTimerStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var res resources
	defer res.closeAll(logrus.New())

	cases := []struct {
		store string
		check func(any) bool
	}{
		{"memory", func(v any) bool { _, ok := v.(*memorystore.TimerStore); return ok }},
		{"redis", func(v any) bool { _, ok := v.(*redisstore.TimerStore); return ok }},
		{"sqlite", func(v any) bool { _, ok := v.(*sqlitestore.TimerStore); return ok }},
	}
	for _, tc := range cases {
		cfg := config.Config{Timers: config.Timers{Store: tc.store, DBPath: filepath.Join(t.TempDir(), "timers.db")}}
		st, err := openTimerStore(ctx, cfg, rdb, &res)
		if err != nil {
			t.Fatalf("%s: %v", tc.store, err)
		}
		if !tc.check(st) {
			t.Fatalf("%s: unexpected store %T", tc.store, st)
		}
		timer := policy.Timer{SubjectID: "u1", RoleID: "seed", Start: time.Unix(100, 0).UTC(), Expiration: time.Unix(200, 0).UTC()}
		if err := st.Put(ctx, timer); err != nil {
			t.Fatalf("%s put: %v", tc.store, err)
		}
		if _, ok, err := st.Get(ctx, "u1"); err != nil || !ok {
			t.Fatalf("%s get: %v %v", tc.store, ok, err)
		}
	}
}

func TestNewGate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	lim := config.RateLimit{Calls: 4, Period: time.Second, Backend: "redis"}
	if _, ok := newGate(lim, rdb).(*redislimiter.Limiter); !ok {
		t.Error("expected redis limiter")
	}
	if _, ok := newGate(lim, nil).(*memorylimiter.Limiter); !ok {
		t.Error("expected memory limiter without a redis client")
	}
	lim.Backend = "memory"
	if _, ok := newGate(lim, rdb).(*memorylimiter.Limiter); !ok {
		t.Error("expected memory limiter")
	}
}

func TestNewBackend(t *testing.T) {
	b, err := newBackend(config.API{Backend: "discord", Token: "tok"})
	if err != nil {
		t.Fatalf("discord: %v", err)
	}
	if _, ok := b.(*roleclient.DiscordBackend); !ok {
		t.Errorf("unexpected backend %T", b)
	}
	b, err = newBackend(config.API{Backend: "http", URL: "http://api.local"})
	if err != nil {
		t.Fatalf("http: %v", err)
	}
	if _, ok := b.(*roleclient.HTTPBackend); !ok {
		t.Errorf("unexpected backend %T", b)
	}
}

func TestOpenHoursSource_DisabledWithoutActivityRole(t *testing.T) {
	var res resources
	src, err := openHoursSource(context.Background(), config.Config{}, &res)
	if err != nil || src != nil {
		t.Fatalf("expected nil source, got %v %v", src, err)
	}
}

func TestResources_CloseInReverse(t *testing.T) {
	var order []string
	var res resources
	res.add("a", func() error { order = append(order, "a"); return nil })
	res.add("b", func() error { order = append(order, "b"); return errors.New("already closed") })

	log := logrus.New()
	log.SetOutput(io.Discard)
	res.closeAll(log)
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("close order %v", order)
	}
}
