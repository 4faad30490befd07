// Command rolesync keeps community roles in line with seeding points and
// recent play time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	rsgin "github.com/PaulFidika/rolesync/adapters/gin"
	"github.com/PaulFidika/rolesync/config"
	"github.com/PaulFidika/rolesync/core"
	"github.com/PaulFidika/rolesync/logging"
	"github.com/PaulFidika/rolesync/policy"
	"github.com/PaulFidika/rolesync/roleclient"
	mongosource "github.com/PaulFidika/rolesync/sources/mongo"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	if err := run(*envFile, *once); err != nil {
		fmt.Fprintln(os.Stderr, "rolesync:", err)
		os.Exit(1)
	}
}

func run(envFile string, once bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res resources
	defer res.closeAll(log)

	rdb, err := res.redis(ctx, cfg)
	if err != nil {
		return err
	}

	timers, err := openTimerStore(ctx, cfg, rdb, &res)
	if err != nil {
		return err
	}

	backend, err := newBackend(cfg.API)
	if err != nil {
		return err
	}
	client := roleclient.NewClient(cfg.GuildID, backend, newGate(cfg.RateLimit, rdb), log.WithField("component", "roleclient"))

	subjects, err := mongosource.Connect(ctx, mongosource.Config{
		URI:               cfg.Mongo.ConnectionURI(),
		Database:          cfg.Mongo.Database,
		PlayersCollection: cfg.Mongo.Collection,
		ConfigsCollection: cfg.Mongo.ConfigCollection,
	}, log.WithField("component", "mongo"))
	if err != nil {
		return err
	}
	res.add("mongo", func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return subjects.Close(closeCtx)
	})

	hours, err := openHoursSource(ctx, cfg, &res)
	if err != nil {
		return err
	}

	schedule, err := cfg.CronSchedule()
	if err != nil {
		return err
	}

	deps := core.Deps{
		Subjects: subjects,
		Hours:    hours,
		Timers:   timers,
		Actions:  client,
		Logger:   log.WithField("component", "engine"),
	}

	var status *rsgin.Status
	if cfg.StatusAddr != "" {
		// Unhealthy after missing a few consecutive passes.
		now := time.Now()
		status = rsgin.NewStatus(3*schedule.Next(now).Sub(now) + time.Minute)
		deps.Observer = status
	}

	engine, err := core.New(core.Config{
		MemberRoleID:        cfg.MemberRoleID,
		Seeding:             policy.Rule{RoleID: cfg.SeedRoleID, GracePeriod: cfg.GracePeriod()},
		RewardCategory:      cfg.RewardCategory,
		DefaultRewardPoints: cfg.DefaultRewardPoints,
		Activity:            policy.Rule{RoleID: cfg.ActivityRoleID, Threshold: cfg.HoursThreshold},
		HoursWindow:         cfg.HoursWindow(),
		Schedule:            schedule,
	}, deps)
	if err != nil {
		return err
	}

	if once {
		_, err := engine.RunPass(ctx)
		return err
	}

	if status != nil {
		go func() {
			if err := rsgin.Serve(ctx, cfg.StatusAddr, rsgin.NewRouter(status), log.WithField("component", "status")); err != nil {
				log.WithError(err).Error("status server failed")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"guild":       cfg.GuildID,
		"member_role": cfg.MemberRoleID,
		"seed_role":   cfg.SeedRoleID,
		"timer_store": cfg.Timers.Store,
	}).Info("starting rolesync")
	return engine.Run(ctx)
}
