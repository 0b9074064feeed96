package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/hcdesk/internal/config"
)

func main() {
	config.LoadDotEnv()
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the headless server a client command talks to
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// StopFlags holds flags for the stop command
type StopFlags struct {
	APIFlags
	Wait time.Duration
}

// HandshakeFlags holds flags for the handshake diagnostic
type HandshakeFlags struct {
	MaxLines int
	Timeout  time.Duration
	Wait     time.Duration
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}
	stopFlags := &StopFlags{}
	handshakeFlags := &HandshakeFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createServeCommand(globalFlags),
		createStartCommand(globalFlags, apiFlags),
		createURLCommand(globalFlags, apiFlags),
		createStatusCommand(globalFlags, apiFlags),
		createStopCommand(globalFlags, stopFlags),
		createHandshakeCommand(handshakeFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "hcdesk",
		Short: "Desktop shell for the Cribl health check backend",
		Long: `hcdesk hosts the cribl-hc-backend service as a child process and exposes
a small set of commands to its frontend: start the backend, query its URL and
status, save files through a native dialog and open the Downloads folder.

Examples:
  hcdesk run                        # Desktop window
  hcdesk serve                      # Headless JSON API on loopback
  hcdesk start                      # Ask a running 'serve' to launch the backend
  hcdesk url --api-url=http://127.0.0.1:8765/api
  hcdesk handshake -- ./cribl-hc-backend --port 0`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "hcdesk API URL (default from [server] config)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 60*time.Second, "request timeout")
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the desktop window",
		Long: `Open the desktop window. In release builds the backend is started
automatically once the window is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return runDesktop(cfg)
		},
	}
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the desktop commands as a JSON API",
		Long: `Run without a window and expose the desktop commands over HTTP on the
[server] listen address. Metrics are served on [metrics] listen when enabled.

Examples:
  hcdesk serve
  HCDESK_SERVER_LISTEN=127.0.0.1:0 hcdesk serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			return runServe(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func createStartCommand(globalFlags *GlobalFlags, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the backend through a running 'hcdesk serve'",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(globalFlags, *f)
			if err != nil {
				return err
			}
			return startViaAPI(cmd.Context(), c, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createURLCommand(globalFlags *GlobalFlags, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the backend URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(globalFlags, *f)
			if err != nil {
				return err
			}
			return urlViaAPI(cmd.Context(), c, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStatusCommand(globalFlags *GlobalFlags, f *APIFlags) *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the backend status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(globalFlags, *f)
			if err != nil {
				return err
			}
			return statusViaAPI(cmd.Context(), c, detailed, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, f)
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print the full supervisor state as JSON")
	return cmd
}

func createStopCommand(globalFlags *GlobalFlags, f *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(globalFlags, f.APIFlags)
			if err != nil {
				return err
			}
			return stopViaAPI(cmd.Context(), c, f.Wait, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	cmd.Flags().DurationVar(&f.Wait, "wait", 0, "grace period before the backend is killed (default from server)")
	return cmd
}

func createHandshakeCommand(f *HandshakeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handshake -- <binary> [args...]",
		Short: "Launch a binary with the sidecar contract and print its URL",
		Long: `Spawn any binary the way the backend is spawned, read the PORT: line from
its stdout, print the discovered URL and stop it again. Useful to check a
backend build without the desktop window.

Examples:
  hcdesk handshake -- ./binaries/cribl-hc-backend --port 0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandshake(cmd.Context(), *f, args[0], args[1:], cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&f.MaxLines, "max-lines", 10, "output lines inspected for the port")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 30*time.Second, "handshake timeout (0 waits forever)")
	cmd.Flags().DurationVar(&f.Wait, "wait", 5*time.Second, "grace period before the binary is killed")
	return cmd
}
