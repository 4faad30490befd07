package roleclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	memorylimiter "github.com/PaulFidika/rolesync/ratelimit/memory"
	rstesting "github.com/PaulFidika/rolesync/testing"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHTTPBackend_GrantAndRevoke(t *testing.T) {
	api := rstesting.NewRoleAPI()
	defer api.Close()

	backend, err := NewHTTPBackend(HTTPConfig{BaseURL: api.URL() + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	c := NewClient("g1", backend, nil, quietLogger())
	ctx := context.Background()

	if err := c.GrantRole(ctx, "u1", "seed"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	since := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := c.RevokeRole(ctx, "u1", "seed", &since); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := c.RevokeRole(ctx, "u1", "active", nil); err != nil {
		t.Fatalf("revoke without timestamp: %v", err)
	}

	calls := api.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].Op != "add-role" || calls[0].GuildID != "g1" || calls[0].UserID != "u1" || calls[0].RoleID != "seed" {
		t.Errorf("unexpected grant call: %+v", calls[0])
	}
	if calls[0].Authorization != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", calls[0].Authorization)
	}
	if calls[1].Op != "remove-role" || calls[1].Timestamp != "2026-02-01T09:00:00Z" {
		t.Errorf("unexpected revoke call: %+v", calls[1])
	}
	if calls[2].Timestamp != "" {
		t.Errorf("timestamp should be omitted, got %q", calls[2].Timestamp)
	}
}

func TestHTTPBackend_NonSuccessStatus(t *testing.T) {
	api := rstesting.NewRoleAPI()
	defer api.Close()
	api.FailUser("u2", http.StatusBadGateway)

	backend, _ := NewHTTPBackend(HTTPConfig{BaseURL: api.URL()})
	c := NewClient("g1", backend, nil, quietLogger())

	err := c.GrantRole(context.Background(), "u2", "seed")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusBadGateway || se.Op != "add-role" {
		t.Errorf("unexpected status error: %+v", se)
	}
	if roles := api.Roles("u2"); len(roles) != 0 {
		t.Errorf("failed call must not change membership: %v", roles)
	}
}

func TestHTTPBackend_RequiresURL(t *testing.T) {
	if _, err := NewHTTPBackend(HTTPConfig{}); err == nil {
		t.Fatal("expected error without base url")
	}
}

func TestDiscordBackend(t *testing.T) {
	api := rstesting.NewRoleAPI()
	defer api.Close()

	backend, err := NewDiscordBackend(DiscordConfig{BaseURL: api.URL(), BotToken: "tok"})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	c := NewClient("g9", backend, nil, quietLogger())
	ctx := context.Background()
	if err := c.GrantRole(ctx, "u1", "r1"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if got := api.Roles("u1"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("expected r1 granted, got %v", got)
	}
	since := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := c.RevokeRole(ctx, "u1", "r1", &since); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := api.Roles("u1"); len(got) != 0 {
		t.Fatalf("expected r1 removed, got %v", got)
	}

	calls := api.Calls()
	if calls[0].Authorization != "Bot tok" {
		t.Errorf("expected bot authorization, got %q", calls[0].Authorization)
	}
	if calls[1].GuildID != "g9" || calls[1].AuditReason == "" {
		t.Errorf("unexpected revoke call: %+v", calls[1])
	}
}

func TestDiscordBackend_RequiresToken(t *testing.T) {
	if _, err := NewDiscordBackend(DiscordConfig{}); err == nil {
		t.Fatal("expected error without bot token")
	}
}

// countingBackend tracks how many calls are in flight at once.
type countingBackend struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
}

func (b *countingBackend) enter() {
	b.mu.Lock()
	b.inFlight++
	b.calls++
	if b.inFlight > b.maxSeen {
		b.maxSeen = b.inFlight
	}
	b.mu.Unlock()
	time.Sleep(time.Millisecond)
	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
}

func (b *countingBackend) AddRole(context.Context, string, string, string) error {
	b.enter()
	return nil
}

func (b *countingBackend) RemoveRole(context.Context, string, string, string, *time.Time) error {
	b.enter()
	return nil
}

func TestClient_SerializesAndLimitsAcrossCallers(t *testing.T) {
	backend := &countingBackend{}
	gate := memorylimiter.New(memorylimiter.Limit{Limit: 4, Window: 50 * time.Millisecond})
	c := NewClient("g1", backend, gate, quietLogger())

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = c.GrantRole(context.Background(), "u", "r")
			} else {
				_ = c.RevokeRole(context.Background(), "u", "r", nil)
			}
		}(i)
	}
	wg.Wait()

	if backend.calls != 10 {
		t.Fatalf("expected 10 calls, got %d", backend.calls)
	}
	if backend.maxSeen != 1 {
		t.Fatalf("calls overlapped: max in flight %d", backend.maxSeen)
	}
	// 10 calls at 4 per window need at least two full windows.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("10 calls finished in %s", elapsed)
	}
}
