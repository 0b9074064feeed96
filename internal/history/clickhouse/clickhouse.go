package clickhouse

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/hcdesk/internal/history"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options configures the ClickHouse connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(opts Options) (*Sink, error) {
	if !tableName.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", opts.Table)
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: opts.Table}
	if err := s.ensureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			type String,
			occurred_at DateTime64(6),
			run_id String,
			name String,
			mode LowCardinality(String),
			pid UInt32,
			port UInt16,
			error Nullable(String)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, run_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, run_id, name, mode, pid, port, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var errText *string
	if e.Record.Error != "" {
		v := e.Record.Error
		errText = &v
	}

	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.Record.RunID,
		e.Record.Name,
		e.Record.Mode,
		uint32(e.Record.PID),
		e.Record.Port,
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}
