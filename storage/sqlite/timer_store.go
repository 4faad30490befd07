package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/migrate"
	_ "modernc.org/sqlite"

	migrations "github.com/PaulFidika/rolesync/migrations/sqlite"
	"github.com/PaulFidika/rolesync/policy"
)

// legacyLayout is how timers written by the previous service look: local
// time, no zone.
const legacyLayout = "2006-01-02T15:04:05.999999"

type timerRow struct {
	bun.BaseModel `bun:"table:timers"`

	SubjectID      string `bun:"discord_user_id,pk"`
	RoleID         string `bun:"role_id"`
	ExpirationTime string `bun:"expiration_time"`
	StartTime      string `bun:"start_time"`
}

// TimerStore is a SQLite-backed core.TimerStore.
type TimerStore struct {
	db *bun.DB
}

// Open opens (creating if needed) the timer database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*TimerStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create timer storage dir: %w", err)
		}
	}
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &TimerStore{db: db}, nil
}

// Close releases the database.
func (s *TimerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *TimerStore) Put(ctx context.Context, t policy.Timer) error {
	if strings.TrimSpace(t.SubjectID) == "" {
		return fmt.Errorf("subject id is required")
	}
	row := timerRow{
		SubjectID:      t.SubjectID,
		RoleID:         t.RoleID,
		ExpirationTime: t.Expiration.Format(time.RFC3339Nano),
		StartTime:      t.Start.Format(time.RFC3339Nano),
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (discord_user_id) DO UPDATE").
		Set("role_id = EXCLUDED.role_id").
		Set("expiration_time = EXCLUDED.expiration_time").
		Set("start_time = EXCLUDED.start_time").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("put timer: %w", err)
	}
	return nil
}

func (s *TimerStore) Delete(ctx context.Context, subjectID string) error {
	_, err := s.db.NewDelete().
		Model((*timerRow)(nil)).
		Where("discord_user_id = ?", subjectID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	return nil
}

func (s *TimerStore) Get(ctx context.Context, subjectID string) (policy.Timer, bool, error) {
	row := new(timerRow)
	err := s.db.NewSelect().
		Model(row).
		Where("discord_user_id = ?", subjectID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Timer{}, false, nil
	}
	if err != nil {
		return policy.Timer{}, false, fmt.Errorf("get timer: %w", err)
	}
	t, err := row.timer()
	if err != nil {
		return policy.Timer{}, false, err
	}
	return t, true, nil
}

func (s *TimerStore) List(ctx context.Context) ([]policy.Timer, error) {
	var rows []timerRow
	if err := s.db.NewSelect().Model(&rows).Order("discord_user_id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	out := make([]policy.Timer, 0, len(rows))
	for _, r := range rows {
		t, err := r.timer()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r timerRow) timer() (policy.Timer, error) {
	exp, err := parseTime(r.ExpirationTime)
	if err != nil {
		return policy.Timer{}, fmt.Errorf("timer %s: expiration_time: %w", r.SubjectID, err)
	}
	start, err := parseTime(r.StartTime)
	if err != nil {
		return policy.Timer{}, fmt.Errorf("timer %s: start_time: %w", r.SubjectID, err)
	}
	return policy.Timer{SubjectID: r.SubjectID, RoleID: r.RoleID, Start: start, Expiration: exp}, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyLayout, v, time.Local)
}
