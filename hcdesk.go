package hcdesk

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/hcdesk/internal/config"
	"github.com/loykin/hcdesk/internal/desktop"
	"github.com/loykin/hcdesk/internal/history"
	"github.com/loykin/hcdesk/internal/history/factory"
	"github.com/loykin/hcdesk/internal/metrics"
	"github.com/loykin/hcdesk/internal/mode"
	iapi "github.com/loykin/hcdesk/internal/server"
	"github.com/loykin/hcdesk/internal/sidecar"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Mode = mode.Mode

const (
	Development = mode.Development
	Production  = mode.Production
)

type SidecarConfig = sidecar.Config

type Snapshot = sidecar.Snapshot

type Supervisor = sidecar.Supervisor

type Commands = desktop.Commands

type Dialog = desktop.Dialog

type HistorySink = history.Sink

type Config = cfg.FileConfig

// Errors surfaced by the supervisor and commands.
var (
	ErrResourceResolution = sidecar.ErrResourceResolution
	ErrSpawn              = sidecar.ErrSpawn
	ErrPortNotFound       = sidecar.ErrPortNotFound
	ErrHandshakeTimeout   = sidecar.ErrHandshakeTimeout
	ErrNotStarted         = sidecar.ErrNotStarted
	ErrAlreadyStarted     = sidecar.ErrAlreadyStarted
	ErrStartInProgress    = sidecar.ErrStartInProgress
	ErrSaveCancelled      = desktop.ErrSaveCancelled
	ErrUnsupportedPath    = desktop.ErrUnsupportedPath
)

// CurrentMode is the mode selected at build time.
func CurrentMode() Mode { return mode.Current() }

// NewSupervisor creates a supervisor that resolves the backend binary under
// resourceDir/binaries. An empty resourceDir uses the executable's resources.
func NewSupervisor(c SidecarConfig, m Mode, resourceDir string) *Supervisor {
	return sidecar.New(c, m, sidecar.ResourceDirResolver{Dir: resourceDir})
}

// NewCommands wraps sup with the desktop commands. A nil dialog disables saving.
func NewCommands(sup *Supervisor, d Dialog) *Commands {
	return desktop.New(sup, d, nil)
}

// NewHTTPHandler exposes the commands as a JSON API under basePath.
func NewHTTPHandler(sup *Supervisor, cmds *Commands, basePath string) http.Handler {
	return iapi.NewRouter(sup, cmds, basePath).Handler()
}

// NewHTTPServer starts an HTTP server exposing NewHTTPHandler on addr.
func NewHTTPServer(addr, basePath string, sup *Supervisor, cmds *Commands) (*http.Server, error) {
	return iapi.NewServer(addr, NewHTTPHandler(sup, cmds, basePath))
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink opens a launch history sink from a sqlite, postgres or
// clickhouse DSN.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics exposes /metrics on addr and blocks.
func ServeMetrics(addr string) error { return metrics.Serve(addr) }
