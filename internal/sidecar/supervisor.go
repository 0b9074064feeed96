package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/hcdesk/internal/env"
	"github.com/loykin/hcdesk/internal/handshake"
	"github.com/loykin/hcdesk/internal/history"
	"github.com/loykin/hcdesk/internal/logger"
	"github.com/loykin/hcdesk/internal/metrics"
	"github.com/loykin/hcdesk/internal/mode"
)

const (
	DefaultName             = "cribl-hc-backend"
	DefaultDevPort          = 8080
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultStopWait         = 5 * time.Second

	// reapWait bounds how long a killed child is waited for.
	reapWait = 5 * time.Second
)

// DefaultArgs asks the backend to pick a free port itself.
var DefaultArgs = []string{"--port", "0"}

// Config describes how the backend is launched.
type Config struct {
	Name    string
	Args    []string
	Env     []string // KEY=VALUE over the parent's environment; ${VAR} is expanded
	DevPort uint16

	MaxLines         int
	HandshakeTimeout time.Duration // zero waits forever
	Output           logger.OutputConfig
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Args == nil {
		c.Args = DefaultArgs
	}
	if c.DevPort == 0 {
		c.DevPort = DefaultDevPort
	}
	if c.MaxLines <= 0 {
		c.MaxLines = handshake.DefaultMaxLines
	}
	return c
}

// Phase is the lifecycle position of the supervised backend.
type Phase string

const (
	PhaseUnstarted Phase = "unstarted"
	PhaseStarting  Phase = "starting"
	PhaseRunning   Phase = "running"
	PhaseFailed    Phase = "failed"
	PhaseExited    Phase = "exited"
	PhaseStopped   Phase = "stopped"
)

// Snapshot is a point-in-time copy of the supervisor state.
type Snapshot struct {
	Mode      string    `json:"mode"`
	State     Phase     `json:"state"`
	Port      uint16    `json:"port,omitempty"`
	URL       string    `json:"url,omitempty"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

type run struct {
	id        string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	done      chan struct{} // closed once cmd.Wait returns
	exitErr   error

	stopping bool // guarded by Supervisor.mu
	finished bool // guarded by Supervisor.mu
}

// Supervisor owns the backend child process and the port it reported.
// A stored port is never cleared; after the child exits URL keeps returning
// the last address and a new Start is allowed.
type Supervisor struct {
	cfg      Config
	mode     mode.Mode
	resolver Resolver
	log      *slog.Logger
	hist     history.Sink

	mu        sync.Mutex
	phase     Phase
	port      uint16
	run       *run
	stoppedAt time.Time
	lastErr   string
}

func New(cfg Config, m mode.Mode, r Resolver) *Supervisor {
	if r == nil {
		r = ResourceDirResolver{}
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		mode:     m,
		resolver: r,
		log:      slog.Default(),
		phase:    PhaseUnstarted,
	}
}

func (s *Supervisor) SetLogger(l *slog.Logger) {
	if l != nil {
		s.log = l
	}
}

// SetHistory installs a sink that receives lifecycle events. Send errors are logged.
func (s *Supervisor) SetHistory(h history.Sink) { s.hist = h }

func (s *Supervisor) Mode() mode.Mode { return s.mode }

// Start launches the backend and returns a human-readable status message.
// In Development nothing is spawned; the development port is recorded instead.
func (s *Supervisor) Start(ctx context.Context) (string, error) {
	if s.mode != mode.Production {
		s.mu.Lock()
		s.port = s.cfg.DevPort
		s.phase = PhaseRunning
		s.mu.Unlock()
		metrics.IncStart(s.mode.String())
		return fmt.Sprintf("Development mode - backend should be started manually on port %d", s.cfg.DevPort), nil
	}

	s.mu.Lock()
	switch s.phase {
	case PhaseStarting:
		s.mu.Unlock()
		return "", ErrStartInProgress
	case PhaseRunning:
		s.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	prev := s.phase
	s.phase = PhaseStarting
	s.mu.Unlock()

	rec := history.Record{RunID: uuid.NewString(), Name: s.cfg.Name, Mode: s.mode.String()}
	s.emit(ctx, history.EventStartRequested, rec)

	r, port, err := s.launch(ctx, rec.RunID)
	if err != nil {
		s.mu.Lock()
		if errors.Is(err, ErrResourceResolution) {
			s.phase = prev
		} else {
			s.phase = PhaseFailed
		}
		s.lastErr = err.Error()
		s.mu.Unlock()

		metrics.IncStartFailure(failureReason(err))
		rec.Error = err.Error()
		if r != nil {
			rec.PID = r.pid
		}
		s.emit(ctx, history.EventStartFailed, rec)
		s.log.Error("backend start failed", "name", s.cfg.Name, "run_id", rec.RunID, "err", err)
		return "", err
	}

	s.mu.Lock()
	s.port = port
	s.run = r
	s.phase = PhaseRunning
	s.lastErr = ""
	s.mu.Unlock()

	metrics.IncStart(s.mode.String())
	metrics.SetUp(true)
	rec.PID, rec.Port = r.pid, port
	s.emit(ctx, history.EventStarted, rec)
	s.log.Info("backend started", "name", s.cfg.Name, "pid", r.pid, "port", port, "run_id", r.id)
	go s.watch(r)
	return fmt.Sprintf("Backend started on port %d", port), nil
}

// launch spawns the child and runs the port handshake. No lock is held here.
// On failure after spawn the child is killed and reaped; the returned run is
// then only informational.
func (s *Supervisor) launch(ctx context.Context, runID string) (*run, uint16, error) {
	bin, err := s.resolver.Resolve(s.cfg.Name)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrResourceResolution, err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd := exec.Command(bin, s.cfg.Args...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	if len(s.cfg.Env) > 0 {
		cmd.Env = env.FromOS().Merge(s.cfg.Env)
	}
	configureSysProcAttr(cmd)

	begin := time.Now()
	startErr := cmd.Start()
	// the child holds its own copies of the write ends
	_ = outW.Close()
	_ = errW.Close()
	if startErr != nil {
		_ = outR.Close()
		_ = errR.Close()
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrSpawn, bin, startErr)
	}

	r := &run{
		id:        runID,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: begin,
		done:      make(chan struct{}),
	}
	go func() {
		r.exitErr = cmd.Wait()
		close(r.done)
	}()

	stdoutSink, stderrSink := s.outputs()
	go drain(errR, stderrSink)

	hctx := ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}
	br := bufio.NewReader(outR)
	res, err := handshake.ReadPortContext(hctx, br, s.cfg.MaxLines)
	if err != nil {
		_ = kill(r.pid)
		select {
		case <-r.done:
		case <-time.After(reapWait):
			s.log.Warn("backend did not exit after kill", "pid", r.pid)
		}
		_ = outR.Close()
		_ = stdoutSink.Close()
		if errors.Is(err, ErrPortNotFound) || errors.Is(err, ErrHandshakeTimeout) {
			return r, 0, err
		}
		return r, 0, fmt.Errorf("backend start cancelled: %w", err)
	}
	metrics.ObserveHandshake(time.Since(begin), res.Lines)

	// keep the pipe flowing so the child never blocks on a full buffer
	go drain(readCloser{Reader: br, Closer: outR}, stdoutSink)
	return r, res.Port, nil
}

func (s *Supervisor) outputs() (io.WriteCloser, io.WriteCloser) {
	out, errw, err := s.cfg.Output.Writers(s.cfg.Name)
	if err != nil {
		s.log.Warn("backend output capture disabled", "err", err)
	}
	if out == nil {
		out = discard{}
	}
	if errw == nil {
		errw = discard{}
	}
	return out, errw
}

// watch finalizes state when the child exits on its own.
func (s *Supervisor) watch(r *run) {
	<-r.done
	s.finish(r)
}

func (s *Supervisor) finish(r *run) {
	s.mu.Lock()
	if r.finished {
		s.mu.Unlock()
		return
	}
	r.finished = true
	typ := history.EventExited
	current := s.run == r
	if current {
		s.stoppedAt = time.Now()
		if r.stopping {
			s.phase = PhaseStopped
			typ = history.EventStopped
		} else {
			s.phase = PhaseExited
			if r.exitErr != nil {
				s.lastErr = r.exitErr.Error()
			}
		}
	}
	port := s.port
	s.mu.Unlock()

	metrics.IncExit()
	if current {
		metrics.SetUp(false)
	}
	rec := history.Record{RunID: r.id, Name: s.cfg.Name, Mode: s.mode.String(), PID: r.pid, Port: port}
	if r.exitErr != nil {
		rec.Error = r.exitErr.Error()
	}
	s.emit(context.Background(), typ, rec)
	if typ == history.EventExited {
		s.log.Warn("backend exited", "pid", r.pid, "run_id", r.id, "err", r.exitErr)
	} else {
		s.log.Info("backend stopped", "pid", r.pid, "run_id", r.id)
	}
}

// Stop terminates the running child: SIGTERM to its process group, then
// SIGKILL once wait elapses. ErrNotStarted is returned when no child runs,
// which is always the case in Development.
func (s *Supervisor) Stop(wait time.Duration) error {
	if wait <= 0 {
		wait = DefaultStopWait
	}
	s.mu.Lock()
	r := s.run
	if r == nil || s.phase != PhaseRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	select {
	case <-r.done:
		// exited on its own; watch may not have run yet
		s.mu.Unlock()
		s.finish(r)
		return ErrNotStarted
	default:
	}
	r.stopping = true
	s.mu.Unlock()

	_ = terminate(r.pid)
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-r.done:
	case <-t.C:
		_ = kill(r.pid)
		select {
		case <-r.done:
		case <-time.After(reapWait):
			return fmt.Errorf("backend pid %d did not exit", r.pid)
		}
	}
	s.finish(r)
	return nil
}

// URL returns the address of the backend.
func (s *Supervisor) URL() (string, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == 0 {
		return "", ErrNotStarted
	}
	return urlFor(port), nil
}

// Status reports the stored address. It does not probe the backend.
func (s *Supervisor) Status() (string, error) {
	u, err := s.URL()
	if err != nil {
		return "", err
	}
	return "Backend status: Running on " + u, nil
}

// PID returns the pid of the running child, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil || s.phase != PhaseRunning {
		return 0
	}
	return s.run.pid
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Mode:      s.mode.String(),
		State:     s.phase,
		Port:      s.port,
		StoppedAt: s.stoppedAt,
		LastError: s.lastErr,
	}
	if s.port != 0 {
		snap.URL = urlFor(s.port)
	}
	if s.run != nil {
		snap.RunID = s.run.id
		snap.StartedAt = s.run.startedAt
		if s.phase == PhaseRunning {
			snap.PID = s.run.pid
		}
	}
	return snap
}

func (s *Supervisor) emit(ctx context.Context, typ history.EventType, rec history.Record) {
	if s.hist == nil {
		return
	}
	ev := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}
	if err := s.hist.Send(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("history send failed", "event", typ, "run_id", rec.RunID, "err", err)
	}
}

func urlFor(port uint16) string { return fmt.Sprintf("http://localhost:%d", port) }

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrResourceResolution):
		return "resolve"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrHandshakeTimeout):
		return "timeout"
	case errors.Is(err, ErrPortNotFound):
		return "handshake"
	default:
		return "cancelled"
	}
}

func drain(r io.ReadCloser, w io.WriteCloser) {
	_, _ = io.Copy(w, r)
	_ = r.Close()
	_ = w.Close()
}

type readCloser struct {
	io.Reader
	io.Closer
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }
