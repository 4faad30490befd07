package roleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// HTTPConfig configures HTTPBackend.
type HTTPConfig struct {
	// BaseURL is the role API root; /add-role and /remove-role are appended.
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token   string
	Timeout time.Duration
	// Client overrides the transport, mainly for tests.
	Client *http.Client
}

// HTTPBackend talks to the role API service in front of the platform.
// Success is HTTP 200.
type HTTPBackend struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPBackend(cfg HTTPConfig) (*HTTPBackend, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("role api url is required")
	}
	return &HTTPBackend{baseURL: base, hc: newHTTPClient(cfg.Client, cfg.Token, "Bearer", cfg.Timeout)}, nil
}

type roleRequest struct {
	GuildID   string  `json:"guildId"`
	UserID    string  `json:"userId"`
	RoleID    string  `json:"roleId"`
	Timestamp *string `json:"timestamp,omitempty"`
}

func (b *HTTPBackend) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return b.post(ctx, "add-role", roleRequest{GuildID: guildID, UserID: userID, RoleID: roleID})
}

func (b *HTTPBackend) RemoveRole(ctx context.Context, guildID, userID, roleID string, since *time.Time) error {
	req := roleRequest{GuildID: guildID, UserID: userID, RoleID: roleID}
	if since != nil {
		ts := since.Format(time.RFC3339Nano)
		req.Timestamp = &ts
	}
	return b.post(ctx, "remove-role", req)
}

func (b *HTTPBackend) post(ctx context.Context, op string, body roleRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// newHTTPClient returns a client that stamps an Authorization header of the
// given type when token is set.
func newHTTPClient(base *http.Client, token, tokenType string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}
	if strings.TrimSpace(token) == "" {
		return base
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: tokenType}))
	hc.Timeout = timeout
	return hc
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
