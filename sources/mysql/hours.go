// Package mysqlsource reads played hours from the game server's MySQL
// activity tracker.
package mysqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config describes the MySQL endpoint. DSN wins over the individual fields.
type Config struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// FormatDSN builds a go-sql-driver DSN from the individual fields.
func (c Config) FormatDSN() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	mc.DBName = c.Database
	mc.ParseTime = true
	// Session times are written in the server's local zone.
	mc.Loc = time.Local
	return mc.FormatDSN()
}

// HoursStore aggregates session time per player.
type HoursStore struct {
	db *sql.DB
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*HoursStore, error) {
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(2)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &HoursStore{db: db}, nil
}

// Close releases the pool.
func (s *HoursStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const hoursQuery = `
SELECT
    steamID,
    SUM(TIMESTAMPDIFF(SECOND, joinTime, leaveTime)) / 3600 AS hours_played
FROM
    ActivityTracker_PlayerSession
WHERE
    joinTime >= ?
GROUP BY
    steamID`

// FetchHoursPlayed returns steamID -> hours for sessions that started at or
// after since.
func (s *HoursStore) FetchHoursPlayed(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, hoursQuery, since)
	if err != nil {
		return nil, fmt.Errorf("query hours played: %w", err)
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var steamID string
		var hours sql.NullFloat64
		if err := rows.Scan(&steamID, &hours); err != nil {
			return nil, err
		}
		out[steamID] = hours.Float64
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read hours played: %w", err)
	}
	return out, nil
}
