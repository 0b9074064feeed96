package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/hcdesk/internal/config"
	"github.com/loykin/hcdesk/internal/desktop"
	"github.com/loykin/hcdesk/internal/history/factory"
	"github.com/loykin/hcdesk/internal/logger"
	"github.com/loykin/hcdesk/internal/metrics"
	"github.com/loykin/hcdesk/internal/mode"
	"github.com/loykin/hcdesk/internal/sidecar"
)

// app holds the objects shared by the desktop window and the headless server.
type app struct {
	cfg     *config.FileConfig
	log     *slog.Logger
	sup     *sidecar.Supervisor
	cmds    *desktop.Commands
	closers []io.Closer
}

// newApp wires logger, history sink, metrics, supervisor and commands from cfg.
func newApp(cfg *config.FileConfig, m mode.Mode, d desktop.Dialog, logOut io.Writer) (*app, error) {
	log, logCloser, err := logger.New(cfg.Log, logOut)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	env, err := cfg.SidecarEnv()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	sc := sidecar.Config{
		Name:             cfg.Sidecar.Name,
		Args:             cfg.Sidecar.Args,
		Env:              env,
		DevPort:          uint16(cfg.Sidecar.DevPort),
		MaxLines:         cfg.Handshake.MaxLines,
		HandshakeTimeout: cfg.Handshake.Timeout,
		Output:           cfg.Sidecar.Output,
	}
	a.sup = sidecar.New(sc, m, sidecar.ResourceDirResolver{Dir: cfg.Sidecar.ResourceDir})
	a.sup.SetLogger(log)

	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.sup.SetHistory(sink)
		if c, ok := sink.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", "err", err)
		}
		if err := prometheus.Register(metrics.NewResourceCollector(a.sup.PID)); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				log.Warn("failed to register resource collector", "err", err)
			}
		}
	}

	a.cmds = desktop.New(a.sup, d, nil)
	a.cmds.SetLogger(log)
	return a, nil
}

// shutdown stops the backend if one is running.
func (a *app) shutdown() {
	err := a.sup.Stop(a.cfg.Sidecar.StopWait)
	if err != nil && !errors.Is(err, sidecar.ErrNotStarted) {
		a.log.Warn("failed to stop backend", "err", err)
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
