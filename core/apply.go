package core

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/rolesync/policy"
)

// apply executes one planned step. The remote call always happens before the
// timer mutation so a crash in between leaves, at worst, a timer that the next
// pass re-derives or cancels.
func (e *Engine) apply(ctx context.Context, log logrus.FieldLogger, s step) {
	r := s.report
	id := s.subject.ID
	log = log.WithFields(logrus.Fields{"subject": id, "role": s.rule.RoleID, "decision": s.out.Decision.String()})

	switch s.out.Decision {
	case policy.Grant:
		log.Debug("assigning role")
		if err := e.actions.GrantRole(ctx, id, s.rule.RoleID); err != nil {
			log.WithError(err).Debug("grant not applied")
			r.Failed = append(r.Failed, id)
			return
		}
		r.Assigned = append(r.Assigned, id)
		if s.out.DeleteTimer {
			e.deleteTimer(ctx, log, id)
		}

	case policy.RevokeNow:
		var since *time.Time
		if s.timer != nil {
			start := s.timer.Start
			since = &start
		}
		log.Debug("removing role")
		if err := e.actions.RevokeRole(ctx, id, s.rule.RoleID, since); err != nil {
			log.WithError(err).Debug("revoke not applied")
			r.Failed = append(r.Failed, id)
			return
		}
		r.Removed = append(r.Removed, id)
		if s.out.DeleteTimer {
			e.deleteTimer(ctx, log, id)
		}

	case policy.StartTimer:
		t := *s.out.NewTimer
		if err := e.timers.Put(ctx, t); err != nil {
			log.WithError(err).Error("start timer failed")
			r.Failed = append(r.Failed, id)
			return
		}
		log.Debugf("started timer, expires at %s", t.Expiration.Format(time.RFC3339))
		r.WithTimers = append(r.WithTimers, id)

	case policy.KeepTimer:
		if s.timer != nil {
			log.Debugf("timer already running, expires at %s", s.timer.Expiration.Format(time.RFC3339))
		}
		r.WithTimers = append(r.WithTimers, id)

	case policy.CancelTimer:
		e.deleteTimer(ctx, log, id)
		r.Unchanged = append(r.Unchanged, id)

	default:
		r.Unchanged = append(r.Unchanged, id)
	}
}

// deleteTimer failures are logged only; the next pass sees the leftover timer
// and cancels it.
func (e *Engine) deleteTimer(ctx context.Context, log logrus.FieldLogger, subjectID string) {
	if err := e.timers.Delete(ctx, subjectID); err != nil {
		log.WithError(err).Warn("delete timer failed")
		return
	}
	log.Debug("cancelled timer")
}

// pruneDeparted drops expired timers of subjects missing from the member
// snapshot. Left in place, such a timer would revoke at once if the subject
// came back, skipping the grace period. Unexpired ones are kept in case the
// member role returns before expiry.
func (e *Engine) pruneDeparted(ctx context.Context, log logrus.FieldLogger, snap snapshot, report *PassReport) {
	if len(snap.timers) == 0 {
		return
	}
	present := make(map[string]struct{}, len(snap.members))
	for _, m := range snap.members {
		present[m.ID] = struct{}{}
	}
	now := e.now()
	for id, t := range snap.timers {
		if _, ok := present[id]; ok {
			continue
		}
		tlog := log.WithFields(logrus.Fields{"subject": id, "role": t.RoleID})
		if !t.Expired(now) {
			tlog.Debug("timer kept for subject outside the member snapshot")
			continue
		}
		if err := e.timers.Delete(ctx, id); err != nil {
			tlog.WithError(err).Warn("delete departed timer failed")
			continue
		}
		tlog.Debug("removed expired timer of departed subject")
		report.DepartedTimers = append(report.DepartedTimers, id)
	}
	slices.Sort(report.DepartedTimers)
}

func logRoleReport(log logrus.FieldLogger, label string, members int, r RoleReport) {
	if r.SkipReason != "" {
		log.Infof("Skipped %s: %s", label, r.SkipReason)
		return
	}
	log.Infof("Processed %d users for %s.", members, label)
	log.Infof("%d users had roles assigned: [%s]", len(r.Assigned), strings.Join(r.Assigned, ", "))
	log.Infof("%d users were removed: [%s]", len(r.Removed), strings.Join(r.Removed, ", "))
	log.Infof("%d users have timers: [%s]", len(r.WithTimers), strings.Join(r.WithTimers, ", "))
	log.Infof("%d users were unchanged: [%s]", len(r.Unchanged), strings.Join(r.Unchanged, ", "))
	if len(r.Skipped) > 0 {
		log.Infof("%d users were skipped: [%s]", len(r.Skipped), strings.Join(r.Skipped, ", "))
	}
	if len(r.Failed) > 0 {
		log.Warnf("%d users had failed actions: [%s]", len(r.Failed), strings.Join(r.Failed, ", "))
	}
}
