package roleclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultDiscordAPI = "https://discord.com/api/v10"

// DiscordConfig configures DiscordBackend.
type DiscordConfig struct {
	// BaseURL defaults to the public v10 API.
	BaseURL  string
	BotToken string
	Timeout  time.Duration
	Client   *http.Client
}

// DiscordBackend edits guild member roles through the Discord REST API
// directly. Any 2xx is success (Discord answers 204).
type DiscordBackend struct {
	baseURL string
	hc      *http.Client
}

func NewDiscordBackend(cfg DiscordConfig) (*DiscordBackend, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultDiscordAPI
	}
	return &DiscordBackend{baseURL: base, hc: newHTTPClient(cfg.Client, cfg.BotToken, "Bot", cfg.Timeout)}, nil
}

func (b *DiscordBackend) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return b.do(ctx, http.MethodPut, "add-role", guildID, userID, roleID, "")
}

func (b *DiscordBackend) RemoveRole(ctx context.Context, guildID, userID, roleID string, since *time.Time) error {
	reason := ""
	if since != nil {
		reason = "grace period started " + since.UTC().Format(time.RFC3339)
	}
	return b.do(ctx, http.MethodDelete, "remove-role", guildID, userID, roleID, reason)
}

func (b *DiscordBackend) do(ctx context.Context, method, op, guildID, userID, roleID, reason string) error {
	u := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", b.baseURL,
		url.PathEscape(guildID), url.PathEscape(userID), url.PathEscape(roleID))
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.QueryEscape(reason))
	}
	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
