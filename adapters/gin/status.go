package rsgin

import (
	"sync"
	"time"

	"github.com/PaulFidika/rolesync/core"
)

// Status records the most recent pass for the HTTP endpoints. It implements
// core.Observer and never blocks the loop for longer than a mutex hold.
type Status struct {
	mu        sync.RWMutex
	startedAt time.Time
	last      *core.PassReport
	passes    int
	aborted   int

	// StaleAfter marks the process unhealthy when no pass finished for
	// this long. Zero disables the check.
	StaleAfter time.Duration
	now        func() time.Time
}

func NewStatus(staleAfter time.Duration) *Status {
	return &Status{startedAt: time.Now(), StaleAfter: staleAfter, now: time.Now}
}

func (s *Status) PassCompleted(r core.PassReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &r
	s.passes++
	if r.Error != "" {
		s.aborted++
	}
}

// Snapshot is the JSON body served on /status.
type Snapshot struct {
	StartedAt time.Time        `json:"started_at"`
	Passes    int              `json:"passes"`
	Aborted   int              `json:"aborted"`
	LastPass  *core.PassReport `json:"last_pass,omitempty"`
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{StartedAt: s.startedAt, Passes: s.passes, Aborted: s.aborted}
	if s.last != nil {
		r := *s.last
		snap.LastPass = &r
	}
	return snap
}

// Health returns "ok", "starting" or a reason the process is unhealthy.
func (s *Status) Health() (healthy bool, state string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return true, "starting"
	}
	if s.last.Error != "" {
		return false, "last pass aborted: " + s.last.Error
	}
	if s.StaleAfter > 0 && s.now().Sub(s.last.FinishedAt) > s.StaleAfter {
		return false, "no pass finished since " + s.last.FinishedAt.UTC().Format(time.RFC3339)
	}
	return true, "ok"
}
