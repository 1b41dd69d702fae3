package schedule

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "reportd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config locates the schedule database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store persists schedule definitions in SQLite. The scheduler reads the
// enabled subset on every rebuild; mutations go through Insert/SetEnabled.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("schedule store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, sc Schedule) error {
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_schedules(
			id, report_type, statuses, start_date, end_date, till_now,
			schedule_type, schedule_value, run_time, range_days, email_to,
			enabled, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sc.ID, sc.ReportType, nullStr(sc.Statuses), sc.StartDate, sc.EndDate, boolInt(sc.TillNow),
		sc.ScheduleType, nullStr(sc.ScheduleValue), sc.RunTime, sc.RangeDays, nullStr(sc.EmailTo),
		boolInt(sc.Enabled), sc.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// List returns every schedule, newest first.
func (s *Store) List(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` FROM report_schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListEnabled returns the schedules the scheduler should register.
func (s *Store) ListEnabled(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` FROM report_schedules WHERE enabled = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

// SetEnabled toggles a schedule. The caller is expected to rebuild the
// trigger table afterwards.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_schedules SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectCols = `SELECT id, report_type, statuses, start_date, end_date, till_now,
	schedule_type, schedule_value, run_time, range_days, email_to, enabled, created_at`

func scanAll(rows *sql.Rows) ([]Schedule, error) {
	var out []Schedule
	for rows.Next() {
		var (
			sc                          Schedule
			statuses, value, email      sql.NullString
			tillNow, enabled, rangeDays int
			created                     string
		)
		if err := rows.Scan(&sc.ID, &sc.ReportType, &statuses, &sc.StartDate, &sc.EndDate, &tillNow,
			&sc.ScheduleType, &value, &sc.RunTime, &rangeDays, &email, &enabled, &created); err != nil {
			return nil, err
		}
		sc.Statuses = statuses.String
		sc.ScheduleValue = value.String
		sc.EmailTo = email.String
		sc.TillNow = tillNow != 0
		sc.Enabled = enabled != 0
		sc.RangeDays = rangeDays
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			sc.CreatedAt = t
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
