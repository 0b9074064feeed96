package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/loykin/hcdesk/internal/config"
)

func TestHelpListsCommands(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, name := range []string{"run", "serve", "start", "url", "status", "stop", "handshake"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("help output missing %q: %s", name, out.String())
		}
	}
}

func TestHandshakeRequiresBinary(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"handshake"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error without a binary")
	}
}

func TestAPIURLFromConfig(t *testing.T) {
	cases := []struct {
		listen, base, want string
	}{
		{"127.0.0.1:8765", "/api", "http://127.0.0.1:8765/api"},
		{":9000", "/api/", "http://127.0.0.1:9000/api"},
		{"localhost:1", "v1", "http://localhost:1/v1"},
		{"127.0.0.1:2", "", "http://127.0.0.1:2"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		cfg.Server.Listen = tc.listen
		cfg.Server.BasePath = tc.base
		if got := apiURLFromConfig(cfg); got != tc.want {
			t.Fatalf("apiURLFromConfig(%q, %q) = %q, want %q", tc.listen, tc.base, got, tc.want)
		}
	}
}
