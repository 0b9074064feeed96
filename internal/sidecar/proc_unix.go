//go:build !windows

package sidecar

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the child in its own process group so the whole
// tree can be signalled.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(pid int) error { return syscall.Kill(-pid, syscall.SIGTERM) }

func kill(pid int) error { return syscall.Kill(-pid, syscall.SIGKILL) }
