// Package core runs the reconciliation loop: it pulls member snapshots,
// evaluates the role policy for each member and converges remote role state,
// keeping grace-period timers in a TimerStore.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/rolesync/policy"
)

// Deps are the collaborators an Engine drives. Hours and Observer are optional.
type Deps struct {
	Subjects SubjectSource
	Hours    HoursSource
	Timers   TimerStore
	Actions  RoleActions
	Observer Observer
	Logger   logrus.FieldLogger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Engine owns the reconciliation loop. One Engine is built at startup and
// must not run two passes at once.
type Engine struct {
	cfg      Config
	subjects SubjectSource
	hours    HoursSource
	timers   TimerStore
	actions  RoleActions
	observer Observer
	log      logrus.FieldLogger
	now      func() time.Time
}

// New builds an engine. Subjects, Timers and Actions are required.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Subjects == nil {
		return nil, errors.New("subject source is required")
	}
	if deps.Timers == nil {
		return nil, errors.New("timer store is required")
	}
	if deps.Actions == nil {
		return nil, errors.New("role actions are required")
	}
	if cfg.Seeding.RoleID == "" {
		return nil, errors.New("seeding role id is required")
	}
	e := &Engine{
		cfg:      cfg.normalized(),
		subjects: deps.Subjects,
		hours:    deps.Hours,
		timers:   deps.Timers,
		actions:  deps.Actions,
		observer: deps.Observer,
		log:      deps.Logger,
		now:      deps.Now,
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Run executes passes until ctx is cancelled. Cancellation is only observed
// between passes; a pass that has started always runs to completion.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("reconciler started")
	for {
		if ctx.Err() != nil {
			e.log.Info("reconciler stopped")
			return nil
		}
		// An aborted pass is already logged and reported; the loop carries on.
		e.RunPass(ctx)

		now := e.now()
		wait := e.cfg.Schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		e.log.Debugf("next pass in %s", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			e.log.Info("reconciler stopped")
			return nil
		case <-t.C:
		}
	}
}

// step is one planned decision for one subject and role.
type step struct {
	subject Subject
	rule    policy.Rule
	timer   *policy.Timer
	out     policy.Outcome
	report  *RoleReport
}

// snapshot is everything fetched at the start of a pass.
type snapshot struct {
	members     []Subject
	threshold   int
	timers      map[string]policy.Timer
	hours       map[string]float64
	hoursReason string
}

// RunPass runs one Fetching -> Evaluating -> Applying pass. The returned error
// is non-nil only when the pass was aborted during fetching.
func (e *Engine) RunPass(ctx context.Context) (PassReport, error) {
	ctx = context.WithoutCancel(ctx)
	report := PassReport{ID: uuid.NewString(), StartedAt: e.now()}
	log := e.log.WithField("pass_id", report.ID)

	snap, err := e.fetch(ctx, log)
	if err != nil {
		report.Error = err.Error()
		report.FinishedAt = e.now()
		log.WithError(err).Error("pass aborted")
		e.notify(report)
		return report, err
	}
	report.Members = len(snap.members)
	report.RewardPoints = snap.threshold

	steps := e.evaluate(log, snap, &report)
	for _, s := range steps {
		e.apply(ctx, log, s)
	}
	e.pruneDeparted(ctx, log, snap, &report)

	report.FinishedAt = e.now()
	logRoleReport(log, "seeding points", report.Members, report.Seeding)
	if report.Activity != nil {
		logRoleReport(log, "hours played", report.Members, *report.Activity)
	}
	e.notify(report)
	return report, nil
}

func (e *Engine) fetch(ctx context.Context, log logrus.FieldLogger) (snapshot, error) {
	var snap snapshot

	members, err := e.subjects.FetchSubjectsWithRole(ctx, e.cfg.MemberRoleID)
	if err != nil {
		return snap, fmt.Errorf("fetch members: %w", err)
	}
	snap.members = members
	log.Infof("Number of Members: %d", len(members))

	snap.threshold = e.cfg.DefaultRewardPoints
	points, ok, err := e.subjects.FetchRewardThreshold(ctx, e.cfg.RewardCategory)
	switch {
	case err != nil:
		log.WithError(err).Warnf("reward threshold unavailable, using default %d", snap.threshold)
	case !ok:
		log.Infof("no reward configuration for %q, using default %d", e.cfg.RewardCategory, snap.threshold)
	default:
		snap.threshold = points
	}
	log.Infof("Points Needed for Reward: %d", snap.threshold)

	timers, err := e.timers.List(ctx)
	if err != nil {
		return snap, fmt.Errorf("load timers: %w", err)
	}
	snap.timers = make(map[string]policy.Timer, len(timers))
	for _, t := range timers {
		snap.timers[t.SubjectID] = t
	}

	if e.cfg.Activity.RoleID == "" {
		return snap, nil
	}
	if e.hours == nil {
		snap.hoursReason = "no hours source configured"
		return snap, nil
	}
	since := e.now().Add(-e.cfg.HoursWindow)
	hours, err := e.hours.FetchHoursPlayed(ctx, since)
	switch {
	case err != nil:
		log.WithError(err).Error("fetch hours played failed, skipping activity role")
		snap.hoursReason = "hours source unavailable"
	case len(hours) == 0:
		log.Info("No player activity data found for the hours window.")
		snap.hoursReason = "no activity data"
	default:
		snap.hours = hours
	}
	return snap, nil
}

func (e *Engine) evaluate(log logrus.FieldLogger, snap snapshot, report *PassReport) []step {
	now := e.now()
	seeding := e.cfg.Seeding
	seeding.Threshold = float64(snap.threshold)
	report.Seeding = RoleReport{RoleID: seeding.RoleID}

	var activity *RoleReport
	if e.cfg.Activity.RoleID != "" {
		activity = &RoleReport{RoleID: e.cfg.Activity.RoleID, SkipReason: snap.hoursReason}
		report.Activity = activity
	}

	steps := make([]step, 0, len(snap.members)*2)
	for _, m := range snap.members {
		var timer *policy.Timer
		if t, ok := snap.timers[m.ID]; ok {
			timer = &t
		}
		steps = append(steps, step{
			subject: m,
			rule:    seeding,
			timer:   timer,
			report:  &report.Seeding,
			out: policy.Evaluate(seeding, policy.Input{
				SubjectID: m.ID,
				Metric:    m.Points,
				HasRole:   m.HasRole(seeding.RoleID),
				Timer:     timer,
				Now:       now,
			}),
		})

		if activity == nil || snap.hours == nil {
			continue
		}
		if m.CorrelationID == "" {
			log.WithField("subject", m.ID).Debug("no correlation id, skipping activity role")
			activity.Skipped = append(activity.Skipped, m.ID)
			continue
		}
		steps = append(steps, step{
			subject: m,
			rule:    e.cfg.Activity,
			report:  activity,
			out: policy.Evaluate(e.cfg.Activity, policy.Input{
				SubjectID: m.ID,
				Metric:    snap.hours[m.CorrelationID],
				HasRole:   m.HasRole(e.cfg.Activity.RoleID),
				Now:       now,
			}),
		})
	}
	return steps
}

func (e *Engine) notify(report PassReport) {
	if e.observer != nil {
		e.observer.PassCompleted(report)
	}
}
