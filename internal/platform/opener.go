package platform

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Runner launches name with args without waiting for it to finish.
type Runner func(name string, args ...string) error

// StartDetached starts the command and reaps it in the background.
func StartDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Opener shows a folder in the platform file manager.
type Opener struct {
	GOOS string // defaults to runtime.GOOS
	Run  Runner // defaults to StartDetached
}

func NewOpener() Opener { return Opener{} }

func (o Opener) Open(dir string) error {
	goos := o.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	run := o.Run
	if run == nil {
		run = StartDetached
	}
	name, args := openCommandForOS(goos, dir)
	if err := run(name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func openCommandForOS(goos, dir string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{dir}
	case "windows":
		return "explorer", []string{dir}
	default:
		return "xdg-open", []string{dir}
	}
}
