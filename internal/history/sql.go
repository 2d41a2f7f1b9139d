package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	Driver      string
	IDColumn    string
	TimeType    string
	Placeholder func(n int) string // n is 1-based
}

var (
	SQLiteDialect = Dialect{
		Driver:      "sqlite",
		IDColumn:    "id INTEGER PRIMARY KEY AUTOINCREMENT",
		TimeType:    "TIMESTAMP",
		Placeholder: func(int) string { return "?" },
	}
	PostgresDialect = Dialect{
		Driver:      "pgx",
		IDColumn:    "id BIGSERIAL PRIMARY KEY",
		TimeType:    "TIMESTAMPTZ",
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

var columns = []string{
	"occurred_at", "event", "run_id", "name", "pid", "started_at", "stopped_at",
	"outcome", "exit_code", "exit_err", "dump_path", "replaced",
}

// SQLSink stores events in one table through database/sql.
type SQLSink struct {
	db     *sql.DB
	table  string
	insert string
	recent string
}

// NewSQLSink creates the table if needed. The sink owns db.
func NewSQLSink(ctx context.Context, db *sql.DB, d Dialect) (*SQLSink, error) {
	s := &SQLSink{db: db, table: Table}

	ph := make([]string, len(columns))
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	cols := strings.Join(columns, ", ")
	s.insert = fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)", s.table, cols, strings.Join(ph, ", "))
	s.recent = fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT %s", cols, s.table, d.Placeholder(1))

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(
			%s,
			occurred_at %[3]s NOT NULL,
			event TEXT NOT NULL,
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at %[3]s NOT NULL,
			stopped_at %[3]s NULL,
			outcome TEXT NULL,
			exit_code INTEGER NOT NULL,
			exit_err TEXT NULL,
			dump_path TEXT NULL,
			replaced BOOLEAN NOT NULL
		)`, s.table, d.IDColumn, d.TimeType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_run ON %[1]s(run_id)`, s.table),
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return nil, fmt.Errorf("create %s: %w", s.table, err)
		}
	}
	return s, nil
}

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	r := e.Record
	_, err := s.db.ExecContext(ctx, s.insert,
		e.OccurredAt.UTC(), string(e.Type), r.RunID, r.Name, r.PID,
		r.StartedAt.UTC(), nullTime(r.StoppedAt), nullString(r.Outcome),
		r.ExitCode, nullString(r.ExitErr), nullString(r.DumpPath), r.Replaced,
	)
	return err
}

func (s *SQLSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.recent, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			e                       Event
			typ                     string
			stopped                 sql.NullTime
			outcome, exitErr, dumpP sql.NullString
		)
		r := &e.Record
		if err := rows.Scan(&e.OccurredAt, &typ, &r.RunID, &r.Name, &r.PID, &r.StartedAt,
			&stopped, &outcome, &r.ExitCode, &exitErr, &dumpP, &r.Replaced); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		r.StoppedAt = stopped.Time
		r.Outcome = outcome.String
		r.ExitErr = exitErr.String
		r.DumpPath = dumpP.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
