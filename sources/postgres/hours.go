// Package pgsource reads played hours from a PostgreSQL copy of the game
// server activity tracker.
package pgsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HoursStore aggregates session time per player.
type HoursStore struct {
	pg     *pgxpool.Pool
	schema string
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewHoursStore(pg *pgxpool.Pool, schema string) *HoursStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &HoursStore{pg: pg, schema: s}
}

func (s *HoursStore) sessionsTable() string { return s.schema + `."ActivityTracker_PlayerSession"` }

// FetchHoursPlayed returns steamID -> hours for sessions that started at or
// after since. Open sessions (no leave time) do not count.
func (s *HoursStore) FetchHoursPlayed(ctx context.Context, since time.Time) (map[string]float64, error) {
	out := map[string]float64{}
	if s.pg == nil {
		return out, nil
	}
	rows, err := s.pg.Query(ctx, `
SELECT "steamID", COALESCE(SUM(EXTRACT(EPOCH FROM ("leaveTime" - "joinTime"))), 0)::float8 / 3600 AS hours_played
FROM `+s.sessionsTable()+`
WHERE "joinTime" >= $1
GROUP BY "steamID"`, since)
	if err != nil {
		return nil, fmt.Errorf("query hours played: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var steamID string
		var hours float64
		if err := rows.Scan(&steamID, &hours); err != nil {
			return nil, err
		}
		out[steamID] = hours
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read hours played: %w", err)
	}
	return out, nil
}
