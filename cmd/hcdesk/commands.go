package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loykin/hcdesk/internal/config"
	"github.com/loykin/hcdesk/pkg/client"
)

// newAPIClient targets --api-url, or the [server] section of the config.
func newAPIClient(globalFlags *GlobalFlags, f APIFlags) (*client.Client, error) {
	base := f.APIUrl
	if base == "" {
		cfg, err := config.Load(globalFlags.ConfigPath)
		if err != nil {
			return nil, err
		}
		base = apiURLFromConfig(cfg)
	}
	return client.New(client.Config{BaseURL: base, Timeout: f.APITimeout}), nil
}

// apiURLFromConfig derives a loopback URL from the serve listen address.
func apiURLFromConfig(cfg *config.FileConfig) string {
	host := cfg.Server.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	base := strings.TrimRight(cfg.Server.BasePath, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return "http://" + host + base
}

func startViaAPI(ctx context.Context, c *client.Client, out io.Writer) error {
	msg, err := c.Start(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, msg)
	return nil
}

func urlViaAPI(ctx context.Context, c *client.Client, out io.Writer) error {
	u, err := c.URL(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, u)
	return nil
}

func statusViaAPI(ctx context.Context, c *client.Client, detailed bool, out io.Writer) error {
	if detailed {
		st, err := c.State(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	}
	s, err := c.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, s)
	return nil
}

func stopViaAPI(ctx context.Context, c *client.Client, wait time.Duration, out io.Writer) error {
	if err := c.Stop(ctx, wait); err != nil {
		return err
	}
	st, err := c.State(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, st)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
