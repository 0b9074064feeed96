package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/hcdesk/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS sidecar_history(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		event TEXT NOT NULL,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		mode TEXT NOT NULL,
		pid INTEGER NOT NULL,
		port INTEGER NOT NULL,
		error TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sidecar_history(occurred_at, event, run_id, name, mode, pid, port, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), rec.RunID, rec.Name, rec.Mode, rec.PID, int(rec.Port), nullable(rec.Error))
	return err
}

// Events returns stored events for runID in insertion order.
func (s *Sink) Events(ctx context.Context, runID string) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event, run_id, name, mode, pid, port, COALESCE(error, '')
		FROM sidecar_history WHERE run_id = ? ORDER BY rowid;`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var (
			e    history.Event
			typ  string
			port int
		)
		if err := rows.Scan(&e.OccurredAt, &typ, &e.Record.RunID, &e.Record.Name, &e.Record.Mode, &e.Record.PID, &port, &e.Record.Error); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.Record.Port = uint16(port)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
