// Package policy decides, for one subject and one threshold-gated role, what
// the reconciler should do next. Everything here is pure: no clocks, no I/O.
package policy

import "time"

// Decision is the action owed for one (subject, role) pair in a pass.
type Decision int

const (
	NoOp Decision = iota
	Grant
	RevokeNow
	StartTimer
	KeepTimer
	CancelTimer
)

func (d Decision) String() string {
	switch d {
	case Grant:
		return "grant"
	case RevokeNow:
		return "revoke_now"
	case StartTimer:
		return "start_timer"
	case KeepTimer:
		return "keep_timer"
	case CancelTimer:
		return "cancel_timer"
	default:
		return "noop"
	}
}

// Rule describes a threshold-gated role.
// A zero GracePeriod means the role is revoked as soon as the metric drops.
type Rule struct {
	RoleID      string
	Threshold   float64
	GracePeriod time.Duration
}

// UsesTimer reports whether losing the role goes through a grace period.
func (r Rule) UsesTimer() bool { return r.GracePeriod > 0 }

// Timer is a pending delayed revocation.
type Timer struct {
	SubjectID  string    `json:"subject_id"`
	RoleID     string    `json:"role_id"`
	Start      time.Time `json:"start_time"`
	Expiration time.Time `json:"expiration_time"`
}

// Expired reports whether the grace period is over at now.
func (t Timer) Expired(now time.Time) bool { return !now.Before(t.Expiration) }

// Input is everything the evaluator needs about one subject.
type Input struct {
	SubjectID string
	Metric    float64
	HasRole   bool
	// Timer is the subject's stored timer, if any. A timer for another role
	// is ignored.
	Timer *Timer
	Now   time.Time
}

// Outcome is the decision plus its timer-store effect.
type Outcome struct {
	Decision Decision
	// NewTimer is set for StartTimer.
	NewTimer *Timer
	// DeleteTimer asks for the stored timer to be removed once the decision
	// has been applied.
	DeleteTimer bool
}

// Evaluate applies rule to in.
func Evaluate(rule Rule, in Input) Outcome {
	timer := in.Timer
	if timer != nil && timer.RoleID != rule.RoleID {
		timer = nil
	}
	meets := in.Metric >= rule.Threshold

	switch {
	case meets && !in.HasRole:
		return Outcome{Decision: Grant, DeleteTimer: timer != nil}
	case meets && timer != nil:
		// Earned back before the grace period ran out.
		return Outcome{Decision: CancelTimer, DeleteTimer: true}
	case meets:
		return Outcome{Decision: NoOp}
	case !in.HasRole && timer != nil:
		// Role already gone; the timer outlived a revoke.
		return Outcome{Decision: CancelTimer, DeleteTimer: true}
	case !in.HasRole:
		return Outcome{Decision: NoOp}
	case !rule.UsesTimer():
		return Outcome{Decision: RevokeNow, DeleteTimer: timer != nil}
	case timer == nil:
		t := Timer{
			SubjectID:  in.SubjectID,
			RoleID:     rule.RoleID,
			Start:      in.Now,
			Expiration: in.Now.Add(rule.GracePeriod),
		}
		return Outcome{Decision: StartTimer, NewTimer: &t}
	case timer.Expired(in.Now):
		return Outcome{Decision: RevokeNow, DeleteTimer: true}
	default:
		return Outcome{Decision: KeepTimer}
	}
}

// RewardPoints converts a reward configuration record into a point threshold.
// value*option is a duration in milliseconds and one point is earned per
// minute. ok is false when the record is unusable.
func RewardPoints(value, option float64) (points int, ok bool) {
	if value <= 0 || option <= 0 {
		return 0, false
	}
	return int(value * option / 60000), true
}
