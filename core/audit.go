package core

import "time"

// Observer receives a report after every pass, including aborted ones.
// Implementations must not block the loop.
type Observer interface {
	PassCompleted(report PassReport)
}

// RoleReport summarizes one role's outcome for a pass.
type RoleReport struct {
	RoleID     string   `json:"role_id"`
	Assigned   []string `json:"assigned"`
	Removed    []string `json:"removed"`
	WithTimers []string `json:"with_timers"`
	Unchanged  []string `json:"unchanged"`
	Skipped    []string `json:"skipped,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	// SkipReason is set when the whole role was not evaluated this pass.
	SkipReason string `json:"skip_reason,omitempty"`
}

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	ID           string      `json:"id"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	Members      int         `json:"members"`
	RewardPoints int         `json:"reward_points"`
	Seeding      RoleReport  `json:"seeding"`
	Activity     *RoleReport `json:"activity,omitempty"`
	Error        string      `json:"error,omitempty"`

	// DepartedTimers lists subjects outside the member snapshot whose
	// expired timers were removed.
	DepartedTimers []string `json:"departed_timers,omitempty"`
}
