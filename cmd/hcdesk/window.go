package main

import (
	"context"
	"embed"
	"os"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/loykin/hcdesk/internal/config"
	"github.com/loykin/hcdesk/internal/desktop"
	"github.com/loykin/hcdesk/internal/mode"
)

//go:embed all:frontend/dist
var assets embed.FS

// App is bound to the frontend; its exported methods are the commands the
// page can invoke.
type App struct {
	ctx       context.Context
	app       *app
	ready     chan struct{}
	readyOnce sync.Once
}

func newWindow(a *app) *App {
	return &App{ctx: context.Background(), app: a, ready: make(chan struct{})}
}

func (w *App) startup(ctx context.Context) {
	w.ctx = ctx
	mode.AutoStart(ctx, w.app.sup.Mode(), w.app.sup, mode.AutoStartOptions{
		Delay:  w.app.cfg.Sidecar.AutostartDelay,
		Ready:  w.ready,
		Logger: w.app.log,
	})
}

func (w *App) domReady(context.Context) {
	w.readyOnce.Do(func() { close(w.ready) })
}

func (w *App) shutdown(context.Context) {
	w.app.shutdown()
}

func (w *App) StartBackend() (string, error) {
	return w.app.cmds.StartBackend(w.ctx)
}

func (w *App) GetBackendURL() (string, error) {
	return w.app.cmds.GetBackendURL()
}

func (w *App) GetBackendStatus() (string, error) {
	return w.app.cmds.GetBackendStatus()
}

func (w *App) SaveFileWithDialog(filename string, content []byte) (string, error) {
	return w.app.cmds.SaveFileWithDialog(w.ctx, filename, content)
}

func (w *App) OpenDownloadsFolder() error {
	return w.app.cmds.OpenDownloadsFolder()
}

// runDesktop opens the application window and blocks until it is closed.
func runDesktop(cfg *config.FileConfig) error {
	a, err := newApp(cfg, mode.Current(), desktop.WailsDialog{Title: "Save File"}, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	w := newWindow(a)
	return wails.Run(&options.App{
		Title:  cfg.Window.Title,
		Width:  cfg.Window.Width,
		Height: cfg.Window.Height,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  w.startup,
		OnDomReady: w.domReady,
		OnShutdown: w.shutdown,
		Bind:       []interface{}{w},
	})
}
