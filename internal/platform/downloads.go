package platform

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// DownloadsDir returns $HOME/Downloads, or %USERPROFILE%\Downloads on Windows.
func DownloadsDir() (string, error) {
	return downloadsDir(runtime.GOOS, os.Getenv)
}

func downloadsDir(goos string, getenv func(string) string) (string, error) {
	key := "HOME"
	if goos == "windows" {
		key = "USERPROFILE"
	}
	home := getenv(key)
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil || h == "" {
			return "", errors.New("cannot determine home directory")
		}
		home = h
	}
	return filepath.Join(home, "Downloads"), nil
}
