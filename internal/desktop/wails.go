package desktop

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// WailsDialog shows the native save picker of a running wails window. The
// context passed to SaveFile must be the one wails handed to OnStartup.
type WailsDialog struct {
	Title string
}

func (d WailsDialog) SaveFile(ctx context.Context, defaultName string) (string, error) {
	return runtime.SaveFileDialog(ctx, runtime.SaveDialogOptions{
		Title:                d.Title,
		DefaultFilename:      defaultName,
		CanCreateDirectories: true,
	})
}
