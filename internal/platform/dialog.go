package platform

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// OutputFunc runs name with args and returns its standard output.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func commandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// CommandDialog is a save picker backed by the platform's scripting tools:
// zenity on Linux, osascript on macOS and PowerShell on Windows. It is used
// when no desktop window is available.
type CommandDialog struct {
	GOOS   string
	Output OutputFunc
}

// SaveFile asks the user for a destination. An empty path with a nil error
// means the user cancelled.
func (d CommandDialog) SaveFile(ctx context.Context, defaultName string) (string, error) {
	goos := d.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	out := d.Output
	if out == nil {
		out = commandOutput
	}
	name, args := saveDialogCommand(goos, defaultName)
	b, err := out(ctx, name, args...)
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(strings.TrimSpace(string(b))) == 0 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func saveDialogCommand(goos, defaultName string) (string, []string) {
	switch goos {
	case "darwin":
		script := `POSIX path of (choose file name with prompt "Save file" default name "` + appleScriptEscape(defaultName) + `")`
		return "osascript", []string{"-e", script}
	case "windows":
		script := "Add-Type -AssemblyName System.Windows.Forms; " +
			"$d = New-Object System.Windows.Forms.SaveFileDialog; " +
			"$d.FileName = '" + strings.ReplaceAll(defaultName, "'", "''") + "'; " +
			"if ($d.ShowDialog() -eq 'OK') { $d.FileName }"
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}
	default:
		return "zenity", []string{"--file-selection", "--save", "--confirm-overwrite", "--filename=" + defaultName}
	}
}

func appleScriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
