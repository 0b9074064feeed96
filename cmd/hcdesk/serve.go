package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/loykin/hcdesk/internal/config"
	"github.com/loykin/hcdesk/internal/metrics"
	"github.com/loykin/hcdesk/internal/mode"
	"github.com/loykin/hcdesk/internal/platform"
	"github.com/loykin/hcdesk/internal/server"
)

// runServe exposes the desktop commands over HTTP until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.FileConfig, out, logOut io.Writer) error {
	a, err := newApp(cfg, mode.Current(), platform.CommandDialog{}, logOut)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	defer a.shutdown()

	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Listen); err != nil {
				a.log.Error("metrics server error", "err", err)
			}
		}()
	}

	r := server.NewRouter(a.sup, a.cmds, cfg.Server.BasePath)
	r.SetLogger(a.log)
	srv, err := server.NewServer(cfg.Server.Listen, r.Handler())
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Serving hcdesk API on http://%s%s (%s mode)\n", srv.Addr, cfg.Server.BasePath, a.sup.Mode())

	// no window to wait for; the delay still applies
	mode.AutoStart(ctx, a.sup.Mode(), a.sup, mode.AutoStartOptions{
		Delay:  cfg.Sidecar.AutostartDelay,
		Logger: a.log,
	})

	<-ctx.Done()
	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
