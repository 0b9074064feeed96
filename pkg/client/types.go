package client

import "time"

// SaveRequest asks the host to save content via its save dialog.
// Content is sent base64-encoded.
type SaveRequest struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// State mirrors the supervisor snapshot returned by GET /state.
type State struct {
	Mode      string    `json:"mode"`
	State     string    `json:"state"`
	Port      uint16    `json:"port,omitempty"`
	URL       string    `json:"url,omitempty"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type urlResponse struct {
	URL string `json:"url"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type saveResponse struct {
	Path string `json:"path"`
}
