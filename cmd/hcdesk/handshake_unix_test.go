//go:build !windows

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/hcdesk/internal/sidecar"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fake-backend")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestRunHandshake(t *testing.T) {
	bin := writeScript(t, `echo "booting $1 $2"
echo "PORT:45123"
exec sleep 30
`)
	var out bytes.Buffer
	f := HandshakeFlags{MaxLines: 10, Timeout: 5 * time.Second, Wait: 2 * time.Second}
	require.NoError(t, runHandshake(context.Background(), f, bin, nil, &out))
	assert.Equal(t, "Backend started on port 45123\nhttp://localhost:45123\n", out.String())
}

func TestRunHandshakeChildAlreadyExited(t *testing.T) {
	bin := writeScript(t, "echo PORT:45124\n")
	var out bytes.Buffer
	f := HandshakeFlags{MaxLines: 10, Timeout: 5 * time.Second, Wait: time.Second}
	require.NoError(t, runHandshake(context.Background(), f, bin, []string{"--listen", "x"}, &out))
	assert.Contains(t, out.String(), "http://localhost:45124")
}

func TestRunHandshakeNoPort(t *testing.T) {
	bin := writeScript(t, "echo hello\nexec sleep 30\n")
	f := HandshakeFlags{MaxLines: 1, Timeout: 5 * time.Second, Wait: time.Second}
	err := runHandshake(context.Background(), f, bin, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, sidecar.ErrPortNotFound)
}

func TestRunHandshakeMissingBinary(t *testing.T) {
	err := runHandshake(context.Background(), HandshakeFlags{}, filepath.Join(t.TempDir(), "nope"), nil, &bytes.Buffer{})
	require.ErrorIs(t, err, sidecar.ErrResourceResolution)
}
