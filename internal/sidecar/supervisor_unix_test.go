//go:build !windows

package sidecar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/hcdesk/internal/history"
	"github.com/loykin/hcdesk/internal/logger"
	"github.com/loykin/hcdesk/internal/mode"
)

// fakeSidecar writes a shell script standing in for the backend binary and
// returns its resource directory.
func fakeSidecar(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "binaries")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, DefaultName), []byte(script), 0o755))
	return dir
}

func newProd(t *testing.T, body string, cfg Config) *Supervisor {
	t.Helper()
	s := New(cfg, mode.Production, ResourceDirResolver{Dir: fakeSidecar(t, body)})
	t.Cleanup(func() { _ = s.Stop(time.Second) })
	return s
}

func alive(pid int) bool { return syscall.Kill(pid, 0) == nil }

func TestProductionStartHandshake(t *testing.T) {
	h := &memSink{}
	s := newProd(t, `echo "Booting..."
echo "PORT:54321"
echo "Ready"
exec sleep 30`, Config{})
	s.SetHistory(h)

	msg, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Backend started on port 54321", msg)

	u, err := s.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321", u)
	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, "Backend status: Running on http://localhost:54321", st)

	pid := s.PID()
	require.Positive(t, pid)
	assert.True(t, alive(pid))

	snap := s.Snapshot()
	assert.Equal(t, PhaseRunning, snap.State)
	assert.Equal(t, "production", snap.Mode)
	assert.Equal(t, uint16(54321), snap.Port)
	assert.NotEmpty(t, snap.RunID)
	assert.False(t, snap.StartedAt.IsZero())

	_, err = s.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)

	require.NoError(t, s.Stop(2*time.Second))
	snap = s.Snapshot()
	assert.Equal(t, PhaseStopped, snap.State)
	assert.Zero(t, snap.PID)
	assert.Zero(t, s.PID())
	require.Eventually(t, func() bool { return !alive(pid) }, 5*time.Second, 10*time.Millisecond)

	// the last known address survives a stop
	u, err = s.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321", u)

	assert.Equal(t, []history.EventType{history.EventStartRequested, history.EventStarted, history.EventStopped}, h.types())
}

func TestProductionPassesAutoPortArgs(t *testing.T) {
	s := newProd(t, `if [ "$1" = "--port" ] && [ "$2" = "0" ]; then echo "PORT:41234"; fi
exec sleep 30`, Config{})
	msg, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Backend started on port 41234", msg)
}

func TestProductionEnvIsPassed(t *testing.T) {
	s := newProd(t, `echo "PORT:$HCDESK_TEST_PORT"
exec sleep 30`, Config{Env: []string{"HCDESK_TEST_PORT=43210"}})
	_, err := s.Start(context.Background())
	require.NoError(t, err)
	u, _ := s.URL()
	assert.Equal(t, "http://localhost:43210", u)
}

func TestProductionEnvExpandsReferences(t *testing.T) {
	s := newProd(t, `echo "PORT:$HCDESK_TEST_PORT"
exec sleep 30`, Config{Env: []string{"HCDESK_TEST_BASE=432", "HCDESK_TEST_PORT=${HCDESK_TEST_BASE}11"}})
	_, err := s.Start(context.Background())
	require.NoError(t, err)
	u, _ := s.URL()
	assert.Equal(t, "http://localhost:43211", u)
}

func TestProductionPortNotFoundKillsChild(t *testing.T) {
	h := &memSink{}
	s := newProd(t, `i=0
while [ $i -lt 12 ]; do echo "log line $i"; i=$((i+1)); done
exec sleep 30`, Config{})
	s.SetHistory(h)

	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrPortNotFound)
	assert.Equal(t, "failed to read port from backend", err.Error())
	assert.Equal(t, PhaseFailed, s.Snapshot().State)
	_, err = s.URL()
	require.ErrorIs(t, err, ErrNotStarted)

	h.mu.Lock()
	last := h.events[len(h.events)-1]
	h.mu.Unlock()
	require.Equal(t, history.EventStartFailed, last.Type)
	require.Positive(t, last.Record.PID)
	assert.False(t, alive(last.Record.PID), "child must be killed and reaped")
}

func TestProductionEarlyExit(t *testing.T) {
	s := newProd(t, `echo "fatal: config missing" >&2
exit 2`, Config{})
	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrPortNotFound)
}

func TestProductionHandshakeTimeout(t *testing.T) {
	s := newProd(t, `exec sleep 30`, Config{HandshakeTimeout: 100 * time.Millisecond})
	begin := time.Now()
	_, err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.Less(t, time.Since(begin), 5*time.Second)
	assert.Equal(t, PhaseFailed, s.Snapshot().State)
}

func TestProductionStartCancelled(t *testing.T) {
	s := newProd(t, `exec sleep 30`, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Start(ctx)
	require.Error(t, err)
	// a caller deadline is reported as a handshake timeout
	require.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestStopAfterSelfExitReportsExited(t *testing.T) {
	h := &memSink{}
	s := newProd(t, `echo "PORT:40100"
exit 2`, Config{})
	s.SetHistory(h)

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	<-r.done

	require.ErrorIs(t, s.Stop(time.Second), ErrNotStarted)
	snap := s.Snapshot()
	assert.Equal(t, PhaseExited, snap.State)
	assert.Equal(t, "exit status 2", snap.LastError)
	require.Eventually(t, func() bool {
		for _, typ := range h.types() {
			if typ == history.EventExited {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotContains(t, h.types(), history.EventStopped)
}

func TestProductionChildExitThenRestart(t *testing.T) {
	h := &memSink{}
	s := newProd(t, `echo "PORT:40000"
sleep 0.1
exit 3`, Config{})
	s.SetHistory(h)

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Snapshot().State == PhaseExited }, 5*time.Second, 10*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, "exit status 3", snap.LastError)
	assert.False(t, snap.StoppedAt.IsZero())
	u, err := s.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:40000", u)
	require.ErrorIs(t, s.Stop(0), ErrNotStarted)

	msg, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Backend started on port 40000", msg)
	assert.NotEqual(t, snap.RunID, s.Snapshot().RunID)

	require.Eventually(t, func() bool {
		n := 0
		for _, typ := range h.types() {
			if typ == history.EventExited {
				n++
			}
		}
		return n == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProductionConcurrentStart(t *testing.T) {
	s := newProd(t, `sleep 0.3
echo "PORT:45000"
exec sleep 30`, Config{})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Start(context.Background())
		}(i)
	}
	wg.Wait()

	ok, inProgress := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case err == ErrStartInProgress || err == ErrAlreadyStarted:
			inProgress++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, inProgress)
}

func TestProductionOutputCapture(t *testing.T) {
	logs := t.TempDir()
	s := newProd(t, `echo "PORT:46000"
echo "serving requests"
echo "warning: slow disk" >&2
exec sleep 30`, Config{Output: logger.OutputConfig{Dir: logs}})

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	read := func(name string) string {
		b, _ := os.ReadFile(filepath.Join(logs, fmt.Sprintf("%s.%s.log", DefaultName, name)))
		return string(b)
	}
	require.Eventually(t, func() bool {
		return strings.Contains(read("stdout"), "serving requests") && strings.Contains(read("stderr"), "warning: slow disk")
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotContains(t, read("stdout"), "PORT:46000", "handshake line is consumed")
}

func TestStopEscalatesToKill(t *testing.T) {
	s := newProd(t, `trap '' TERM
echo "PORT:47000"
while true; do sleep 0.05; done`, Config{})

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	pid := s.PID()

	begin := time.Now()
	require.NoError(t, s.Stop(200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(begin), 200*time.Millisecond)
	assert.Equal(t, PhaseStopped, s.Snapshot().State)
	require.Eventually(t, func() bool { return !alive(pid) }, 5*time.Second, 10*time.Millisecond)
}
