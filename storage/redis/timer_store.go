package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/PaulFidika/rolesync/policy"
)

// TimerStore keeps every timer as one field of a single Redis hash, so a pass
// can load all of them with one HGETALL.
type TimerStore struct {
	rdb *redis.Client
	key string
}

// NewTimerStore creates a Redis-backed timer store. The hash is created by
// Redis on the first write.
func NewTimerStore(rdb *redis.Client, key string) *TimerStore {
	if key == "" {
		key = "rolesync:timers"
	}
	return &TimerStore{rdb: rdb, key: key}
}

func (s *TimerStore) Put(ctx context.Context, t policy.Timer) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.key, t.SubjectID, b).Err()
}

func (s *TimerStore) Get(ctx context.Context, subjectID string) (policy.Timer, bool, error) {
	val, err := s.rdb.HGet(ctx, s.key, subjectID).Bytes()
	if err == redis.Nil {
		return policy.Timer{}, false, nil
	}
	if err != nil {
		return policy.Timer{}, false, err
	}
	var t policy.Timer
	if err := json.Unmarshal(val, &t); err != nil {
		return policy.Timer{}, false, fmt.Errorf("decode timer %s: %w", subjectID, err)
	}
	t.SubjectID = subjectID
	return t, true, nil
}

func (s *TimerStore) Delete(ctx context.Context, subjectID string) error {
	return s.rdb.HDel(ctx, s.key, subjectID).Err()
}

func (s *TimerStore) List(ctx context.Context) ([]policy.Timer, error) {
	all, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]policy.Timer, 0, len(all))
	for id, raw := range all {
		var t policy.Timer
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode timer %s: %w", id, err)
		}
		t.SubjectID = id
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// Close does not close the shared client.
func (s *TimerStore) Close() error { return nil }
