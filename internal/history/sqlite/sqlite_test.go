package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/hcdesk/internal/history"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	rec := history.Record{RunID: "run-1", Name: "cribl-hc-backend", Mode: "production", PID: 4242, Port: 54321}
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStarted, OccurredAt: now, Record: rec}))
	rec.Error = "signal: killed"
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventExited, OccurredAt: now.Add(time.Second), Record: rec}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStarted, OccurredAt: now, Record: history.Record{RunID: "run-2"}}))

	evs, err := sink.Events(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, history.EventStarted, evs[0].Type)
	assert.Equal(t, uint16(54321), evs[0].Record.Port)
	assert.Equal(t, 4242, evs[0].Record.PID)
	assert.Empty(t, evs[0].Record.Error)
	assert.Equal(t, history.EventExited, evs[1].Type)
	assert.Equal(t, "signal: killed", evs[1].Record.Error)
}

func TestSQLiteSinkInMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventStartFailed, OccurredAt: time.Now(), Record: history.Record{RunID: "x", Error: "failed to read port from backend"}}))
	evs, err := sink.Events(ctx, "x")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, history.EventStartFailed, evs[0].Type)
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}
