package mode

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStarter struct {
	calls atomic.Int32
	at    atomic.Int64
	msg   string
	err   error
}

func (f *fakeStarter) Start(context.Context) (string, error) {
	f.calls.Add(1)
	f.at.Store(time.Now().UnixNano())
	return f.msg, f.err
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("auto-start did not finish")
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "development", Development.String())
	assert.Equal(t, "production", Production.String())
}

func TestCurrentDefaultsToDevelopment(t *testing.T) {
	// tests are built without the production tag
	assert.Equal(t, Development, Current())
}

func TestAutoStartDevelopmentDoesNothing(t *testing.T) {
	s := &fakeStarter{}
	done := AutoStart(context.Background(), Development, s, AutoStartOptions{Delay: -1})
	waitDone(t, done)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestAutoStartWaitsForReadyThenDelay(t *testing.T) {
	s := &fakeStarter{msg: "Backend started on port 5000"}
	ready := make(chan struct{})
	var buf syncBuffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	done := AutoStart(context.Background(), Production, s, AutoStartOptions{Delay: 50 * time.Millisecond, Ready: ready, Logger: log})
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(0), s.calls.Load(), "must not start before ready")

	readyAt := time.Now()
	close(ready)
	waitDone(t, done)
	require.Equal(t, int32(1), s.calls.Load())
	assert.GreaterOrEqual(t, time.Unix(0, s.at.Load()).Sub(readyAt), 50*time.Millisecond)
	assert.Contains(t, buf.String(), "Backend started on port 5000")
}

func TestAutoStartDefaultDelay(t *testing.T) {
	s := &fakeStarter{}
	begin := time.Now()
	waitDone(t, AutoStart(context.Background(), Production, s, AutoStartOptions{}))
	assert.GreaterOrEqual(t, time.Unix(0, s.at.Load()).Sub(begin), DefaultAutoStartDelay)
}

func TestAutoStartFailureIsLoggedAndSwallowed(t *testing.T) {
	s := &fakeStarter{err: errors.New("failed to read port from backend")}
	var buf syncBuffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	waitDone(t, AutoStart(context.Background(), Production, s, AutoStartOptions{Delay: -1, Logger: log}))
	assert.Equal(t, int32(1), s.calls.Load())
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "failed to read port from backend")
}

func TestAutoStartCancelledBeforeReady(t *testing.T) {
	s := &fakeStarter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := AutoStart(ctx, Production, s, AutoStartOptions{Ready: make(chan struct{})})
	cancel()
	waitDone(t, done)
	assert.Equal(t, int32(0), s.calls.Load())
}
