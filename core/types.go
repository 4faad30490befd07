package core

import (
	"context"
	"slices"
	"time"

	"github.com/PaulFidika/rolesync/policy"
)

// Subject is one tracked platform member as seen in the document store.
type Subject struct {
	ID string
	// CorrelationID joins the subject against the relational metrics source.
	// Empty when the member never linked a game account.
	CorrelationID string
	Roles         []string
	Points        float64
}

// HasRole reports whether roleID is currently assigned to s.
func (s Subject) HasRole(roleID string) bool {
	return slices.Contains(s.Roles, roleID)
}

// SubjectSource is the document-store collaborator.
type SubjectSource interface {
	// FetchSubjectsWithRole returns every member holding roleID. No matches is
	// an empty slice, not an error.
	FetchSubjectsWithRole(ctx context.Context, roleID string) ([]Subject, error)
	// FetchRewardThreshold returns the point threshold derived from the reward
	// configuration of category. ok is false when no usable record exists.
	FetchRewardThreshold(ctx context.Context, category string) (points int, ok bool, err error)
}

// HoursSource is the relational-store collaborator.
type HoursSource interface {
	// FetchHoursPlayed maps correlation id -> hours played since the given
	// time. A missing id means zero hours.
	FetchHoursPlayed(ctx context.Context, since time.Time) (map[string]float64, error)
}

// TimerStore persists grace-period timers, at most one per subject.
type TimerStore interface {
	// Put upserts t, replacing any timer already stored for t.SubjectID.
	Put(ctx context.Context, t policy.Timer) error
	// Delete removes the subject's timer. Deleting a missing timer is not an error.
	Delete(ctx context.Context, subjectID string) error
	Get(ctx context.Context, subjectID string) (policy.Timer, bool, error)
	List(ctx context.Context) ([]policy.Timer, error)
}

// RoleActions mutates roles on the remote platform.
type RoleActions interface {
	GrantRole(ctx context.Context, userID, roleID string) error
	// RevokeRole removes roleID. since, when set, is the moment the grace
	// period started and is forwarded for audit.
	RevokeRole(ctx context.Context, userID, roleID string, since *time.Time) error
}
