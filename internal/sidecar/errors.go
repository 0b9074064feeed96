package sidecar

import (
	"errors"

	"github.com/loykin/hcdesk/internal/handshake"
)

var (
	ErrResourceResolution = errors.New("failed to resolve sidecar binary")
	ErrSpawn              = errors.New("failed to spawn sidecar")
	ErrPortNotFound       = handshake.ErrPortNotFound
	ErrHandshakeTimeout   = handshake.ErrHandshakeTimeout
	ErrNotStarted         = errors.New("Backend not started yet")
	ErrAlreadyStarted     = errors.New("backend already running")
	ErrStartInProgress    = errors.New("backend start already in progress")
)
