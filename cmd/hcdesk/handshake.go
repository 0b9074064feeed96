package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/loykin/hcdesk/internal/mode"
	"github.com/loykin/hcdesk/internal/sidecar"
)

// runHandshake launches binary like the backend, prints its URL and stops it.
func runHandshake(ctx context.Context, f HandshakeFlags, binary string, args []string, out io.Writer) error {
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%w: %v", sidecar.ErrResourceResolution, err)
	}
	if path, err = filepath.Abs(path); err != nil {
		return fmt.Errorf("%w: %v", sidecar.ErrResourceResolution, err)
	}
	if len(args) == 0 {
		// --port 0
		args = nil
	}
	sup := sidecar.New(sidecar.Config{
		Name:             filepath.Base(path),
		Args:             args,
		MaxLines:         f.MaxLines,
		HandshakeTimeout: f.Timeout,
	}, mode.Production, sidecar.ResolverFunc(func(string) (string, error) { return path, nil }))

	msg, err := sup.Start(ctx)
	if err != nil {
		return err
	}
	u, err := sup.URL()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, msg)
	_, _ = fmt.Fprintln(out, u)
	if err := sup.Stop(f.Wait); err != nil && !errors.Is(err, sidecar.ErrNotStarted) {
		return err
	}
	return nil
}
