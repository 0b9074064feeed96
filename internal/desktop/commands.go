package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/hcdesk/internal/platform"
)

// Error messages are shown to the user verbatim.
var (
	ErrSaveCancelled   = errors.New("Save cancelled")
	ErrUnsupportedPath = errors.New("URL paths not supported")
	ErrWrite           = errors.New("Failed to save file")
	ErrLaunch          = errors.New("Failed to open Downloads")
)

// Backend is the supervised backend as seen by the frontend.
type Backend interface {
	Start(ctx context.Context) (string, error)
	URL() (string, error)
	Status() (string, error)
}

// Dialog presents a native save picker. An empty path with a nil error means
// the user cancelled.
type Dialog interface {
	SaveFile(ctx context.Context, defaultName string) (string, error)
}

// FolderOpener shows a directory in the platform file manager.
type FolderOpener interface {
	Open(dir string) error
}

// Commands is the set of operations the frontend may invoke.
type Commands struct {
	backend   Backend
	dialog    Dialog
	opener    FolderOpener
	downloads func() (string, error)
	log       *slog.Logger
}

func New(b Backend, d Dialog, o FolderOpener) *Commands {
	if o == nil {
		o = platform.NewOpener()
	}
	return &Commands{
		backend:   b,
		dialog:    d,
		opener:    o,
		downloads: platform.DownloadsDir,
		log:       slog.Default(),
	}
}

func (c *Commands) SetLogger(l *slog.Logger) {
	if l != nil {
		c.log = l
	}
}

// SetDownloadsDir overrides how the Downloads folder is located.
func (c *Commands) SetDownloadsDir(f func() (string, error)) {
	if f != nil {
		c.downloads = f
	}
}

func (c *Commands) StartBackend(ctx context.Context) (string, error) {
	return c.backend.Start(ctx)
}

func (c *Commands) GetBackendURL() (string, error) {
	return c.backend.URL()
}

func (c *Commands) GetBackendStatus() (string, error) {
	return c.backend.Status()
}

// SaveFileWithDialog asks where to save filename and writes content there.
// It returns the absolute path written.
func (c *Commands) SaveFileWithDialog(ctx context.Context, filename string, content []byte) (string, error) {
	if c.dialog == nil {
		return "", fmt.Errorf("%w: no save dialog available", ErrWrite)
	}
	dest, err := c.dialog.SaveFile(ctx, filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if dest == "" {
		return "", ErrSaveCancelled
	}
	if strings.Contains(dest, "://") {
		return "", ErrUnsupportedPath
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	c.log.Info("file saved", "path", abs, "bytes", len(content))
	return abs, nil
}

func (c *Commands) OpenDownloadsFolder() error {
	dir, err := c.downloads()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	if err := c.opener.Open(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	return nil
}
