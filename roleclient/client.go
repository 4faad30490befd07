// Package roleclient issues role grants and revokes against the remote
// platform. All calls made through one Client are serialized and pass a
// single shared rate-limit gate.
package roleclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	memorylimiter "github.com/PaulFidika/rolesync/ratelimit/memory"
)

// Backend performs the raw remote calls.
type Backend interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	// RemoveRole revokes roleID. since is forwarded for audit when set.
	RemoveRole(ctx context.Context, guildID, userID, roleID string, since *time.Time) error
}

// Gate blocks until the next outbound call may proceed.
type Gate interface {
	Wait(ctx context.Context) error
}

// StatusError is returned when the remote side answers with a non-success
// status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client is the rate-limited action client handed to the engine.
type Client struct {
	mu      sync.Mutex
	guildID string
	backend Backend
	gate    Gate
	log     logrus.FieldLogger
}

// NewClient wraps backend. A nil gate means the default 4 calls per second.
func NewClient(guildID string, backend Backend, gate Gate, log logrus.FieldLogger) *Client {
	if gate == nil {
		gate = memorylimiter.New(memorylimiter.DefaultLimit)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{guildID: guildID, backend: backend, gate: gate, log: log}
}

func (c *Client) GrantRole(ctx context.Context, userID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := c.log.WithFields(logrus.Fields{"subject": userID, "role": roleID})
	if err := c.gate.Wait(ctx); err != nil {
		log.WithError(err).Error("rate limit wait failed")
		return err
	}
	log.Debugf("Assigning role %s to user %s", roleID, userID)
	if err := c.backend.AddRole(ctx, c.guildID, userID, roleID); err != nil {
		logFailure(log, "Failed to add role", err)
		return fmt.Errorf("grant role %s to %s: %w", roleID, userID, err)
	}
	log.Debugf("Role %s added to user %s", roleID, userID)
	return nil
}

func (c *Client) RevokeRole(ctx context.Context, userID, roleID string, since *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := c.log.WithFields(logrus.Fields{"subject": userID, "role": roleID})
	if err := c.gate.Wait(ctx); err != nil {
		log.WithError(err).Error("rate limit wait failed")
		return err
	}
	log.Debugf("Removing role %s from user %s", roleID, userID)
	if err := c.backend.RemoveRole(ctx, c.guildID, userID, roleID, since); err != nil {
		logFailure(log, "Failed to remove role", err)
		return fmt.Errorf("revoke role %s from %s: %w", roleID, userID, err)
	}
	if since != nil {
		log = log.WithField("since", since.Format(time.RFC3339))
	}
	log.Debugf("Role %s removed from user %s", roleID, userID)
	return nil
}

func logFailure(log logrus.FieldLogger, msg string, err error) {
	var se *StatusError
	if errors.As(err, &se) {
		log.WithField("status", se.Status).WithField("body", se.Body).Error(msg)
		return
	}
	log.WithError(err).Error(msg)
}
