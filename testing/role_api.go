// Package testing provides a fake role API for tests of code built on
// rolesync. It serves both the role API service routes and the Discord member
// role routes, and keeps the resulting membership in memory.
//
// Example usage:
//
//	api := testing.NewRoleAPI()
//	defer api.Close()
//
//	backend, _ := roleclient.NewHTTPBackend(roleclient.HTTPConfig{BaseURL: api.URL()})
//	api.FailUser("u2", http.StatusInternalServerError)
//	...
//	calls := api.Calls()
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"
)

// Call is one request received by the fake.
type Call struct {
	Op            string
	GuildID       string
	UserID        string
	RoleID        string
	Timestamp     string
	Authorization string
	AuditReason   string
	At            time.Time
}

// RoleAPI is an httptest server that records role mutations.
type RoleAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	calls    []Call
	roles    map[string][]string
	failures map[string]int
}

// NewRoleAPI starts a fake role API.
func NewRoleAPI() *RoleAPI {
	api := &RoleAPI{roles: map[string][]string{}, failures: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /add-role", api.handleCustom("add-role"))
	mux.HandleFunc("POST /remove-role", api.handleCustom("remove-role"))
	mux.HandleFunc("PUT /guilds/{guild}/members/{user}/roles/{role}", api.handleDiscord("add-role"))
	mux.HandleFunc("DELETE /guilds/{guild}/members/{user}/roles/{role}", api.handleDiscord("remove-role"))
	api.server = httptest.NewServer(mux)
	return api
}

// URL returns the base URL of the fake.
func (a *RoleAPI) URL() string { return a.server.URL }

// Close shuts down the server.
func (a *RoleAPI) Close() {
	if a.server != nil {
		a.server.Close()
	}
}

// SetRoles seeds a member's current roles.
func (a *RoleAPI) SetRoles(userID string, roles ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles[userID] = slices.Clone(roles)
}

// Roles returns a member's current roles.
func (a *RoleAPI) Roles(userID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.roles[userID])
}

// FailUser makes every call for userID answer with status.
// A zero status clears the failure.
func (a *RoleAPI) FailUser(userID string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if status == 0 {
		delete(a.failures, userID)
		return
	}
	a.failures[userID] = status
}

// Calls returns every request received so far, in arrival order.
func (a *RoleAPI) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

func (a *RoleAPI) handleCustom(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			GuildID   string `json:"guildId"`
			UserID    string `json:"userId"`
			RoleID    string `json:"roleId"`
			Timestamp string `json:"timestamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		call := Call{
			Op:            op,
			GuildID:       body.GuildID,
			UserID:        body.UserID,
			RoleID:        body.RoleID,
			Timestamp:     body.Timestamp,
			Authorization: r.Header.Get("Authorization"),
		}
		a.record(w, call, http.StatusOK)
	}
}

func (a *RoleAPI) handleDiscord(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := Call{
			Op:            op,
			GuildID:       r.PathValue("guild"),
			UserID:        r.PathValue("user"),
			RoleID:        r.PathValue("role"),
			Authorization: r.Header.Get("Authorization"),
			AuditReason:   r.Header.Get("X-Audit-Log-Reason"),
		}
		a.record(w, call, http.StatusNoContent)
	}
}

func (a *RoleAPI) record(w http.ResponseWriter, call Call, okStatus int) {
	call.At = time.Now()
	a.mu.Lock()
	a.calls = append(a.calls, call)
	status, fail := a.failures[call.UserID]
	if !fail {
		a.apply(call)
	}
	a.mu.Unlock()

	if fail {
		http.Error(w, strings.ToLower(http.StatusText(status)), status)
		return
	}
	w.WriteHeader(okStatus)
}

func (a *RoleAPI) apply(call Call) {
	current := a.roles[call.UserID]
	switch call.Op {
	case "add-role":
		if !slices.Contains(current, call.RoleID) {
			a.roles[call.UserID] = append(current, call.RoleID)
		}
	case "remove-role":
		a.roles[call.UserID] = slices.DeleteFunc(current, func(r string) bool { return r == call.RoleID })
	}
}
