package core

import (
	"time"

	"github.com/PaulFidika/rolesync/policy"
	"github.com/robfig/cron/v3"
)

const (
	DefaultRewardPoints   = 115
	DefaultRewardCategory = "seeding_tracker"
	DefaultGracePeriod    = 1209600 * time.Second
	DefaultInterval       = 60 * time.Second
	DefaultHoursWindow    = 7 * 24 * time.Hour
)

// Config configures one reconciliation engine.
type Config struct {
	// MemberRoleID selects which members are reconciled at all.
	MemberRoleID string

	// Seeding is the points-gated role. Its Threshold is replaced every pass
	// by the remote reward configuration, falling back to DefaultRewardPoints.
	Seeding             policy.Rule
	RewardCategory      string
	DefaultRewardPoints int

	// Activity is the hours-gated role. An empty RoleID disables it.
	// GracePeriod is ignored: the activity role is always revoked immediately.
	Activity    policy.Rule
	HoursWindow time.Duration

	// Schedule decides when the next pass starts, measured from the end of
	// the previous one. Nil means every DefaultInterval.
	Schedule cron.Schedule
}

func (c Config) normalized() Config {
	if c.RewardCategory == "" {
		c.RewardCategory = DefaultRewardCategory
	}
	if c.DefaultRewardPoints <= 0 {
		c.DefaultRewardPoints = DefaultRewardPoints
	}
	if c.Seeding.GracePeriod <= 0 {
		c.Seeding.GracePeriod = DefaultGracePeriod
	}
	c.Activity.GracePeriod = 0
	if c.HoursWindow <= 0 {
		c.HoursWindow = DefaultHoursWindow
	}
	if c.Schedule == nil {
		c.Schedule = cron.Every(DefaultInterval)
	}
	return c
}
