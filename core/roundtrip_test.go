package core_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/rolesync/core"
	"github.com/PaulFidika/rolesync/policy"
	memorylimiter "github.com/PaulFidika/rolesync/ratelimit/memory"
	"github.com/PaulFidika/rolesync/roleclient"
	memorystore "github.com/PaulFidika/rolesync/storage/memory"
	rstesting "github.com/PaulFidika/rolesync/testing"
)

// apiSubjects reads role membership back from the fake API so each pass sees
// the effect of the previous one.
type apiSubjects struct {
	api    *rstesting.RoleAPI
	points map[string]float64
}

func (s apiSubjects) FetchSubjectsWithRole(_ context.Context, roleID string) ([]core.Subject, error) {
	var out []core.Subject
	for id, p := range s.points {
		sub := core.Subject{ID: id, Points: p, Roles: s.api.Roles(id)}
		if sub.HasRole(roleID) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (apiSubjects) FetchRewardThreshold(context.Context, string) (int, bool, error) {
	return 100, true, nil
}

func TestEngine_ConvergesThroughRoleAPI(t *testing.T) {
	api := rstesting.NewRoleAPI()
	defer api.Close()
	api.SetRoles("high", "member")
	api.SetRoles("low", "member", "seed")
	api.SetRoles("outsider", "guest")

	log := logrus.New()
	log.SetOutput(io.Discard)

	backend, err := roleclient.NewHTTPBackend(roleclient.HTTPConfig{BaseURL: api.URL(), Token: "t"})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	gate := memorylimiter.New(memorylimiter.Limit{Limit: 100, Window: time.Second})
	client := roleclient.NewClient("guild", backend, gate, log)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	timers := memorystore.NewTimerStore()
	engine, err := core.New(core.Config{
		MemberRoleID: "member",
		Seeding:      policy.Rule{RoleID: "seed", GracePeriod: time.Hour},
	}, core.Deps{
		Subjects: apiSubjects{api: api, points: map[string]float64{"high": 150, "low": 20, "outsider": 999}},
		Timers:   timers,
		Actions:  client,
		Logger:   log,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := context.Background()

	if _, err := engine.RunPass(ctx); err != nil {
		t.Fatalf("pass 1: %v", err)
	}
	if calls := api.Calls(); len(calls) != 1 || calls[0].UserID != "high" || calls[0].Op != "add-role" {
		t.Fatalf("pass 1 calls: %+v", calls)
	}
	if _, ok, _ := timers.Get(ctx, "low"); !ok {
		t.Fatal("low should have a grace timer")
	}

	now = now.Add(30 * time.Minute)
	if _, err := engine.RunPass(ctx); err != nil {
		t.Fatalf("pass 2: %v", err)
	}
	if calls := api.Calls(); len(calls) != 1 {
		t.Fatalf("converged pass made calls: %+v", calls[1:])
	}

	now = now.Add(time.Hour)
	if _, err := engine.RunPass(ctx); err != nil {
		t.Fatalf("pass 3: %v", err)
	}
	calls := api.Calls()
	if len(calls) != 2 || calls[1].UserID != "low" || calls[1].Op != "remove-role" {
		t.Fatalf("pass 3 calls: %+v", calls)
	}
	if calls[1].Timestamp != "2026-05-01T00:00:00Z" {
		t.Errorf("revoke timestamp %q", calls[1].Timestamp)
	}
	if roles := api.Roles("low"); len(roles) != 1 || roles[0] != "member" {
		t.Errorf("low roles after revoke: %v", roles)
	}
	if roles := api.Roles("outsider"); len(roles) != 1 {
		t.Errorf("non-member must be untouched: %v", roles)
	}
}
