// Package main is the entry point for the SendGrid notification bridge.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/sendgrid-bridge/internal/config"
	"github.com/shineum/sendgrid-bridge/internal/forms"
	"github.com/shineum/sendgrid-bridge/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "sendgrid-bridge",
	Short:         "Deliver forms notifications through SendGrid",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingress",
	RunE:  runServe,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate the SendGrid API key and print its readiness",
	RunE:  runVerify,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print SendGrid account statistics",
	RunE:  runStats,
}

var sendCmd = &cobra.Command{
	Use:   "send [event.json]",
	Short: "Deliver one notification event read from a file, or stdin when the path is -",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	statsCmd.Flags().Int("days", 30, "number of days of statistics to fetch")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and wires the application. The returned cleanup
// closes stores and flushes the error reporter.
func setup(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	log, flush := logger.New(logger.Config{
		Level:             cfg.Logging.Level,
		Output:            os.Stderr,
		SentryDSN:         cfg.Sentry.DSN,
		SentryEnvironment: cfg.Sentry.Environment,
	})
	slog.SetDefault(log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		flush()
		return nil, nil, err
	}
	return a, func() { a.Close(); flush() }, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	r := a.gate.Initialize(ctx)
	a.logger.Info("starting sendgrid-bridge",
		"listen", a.cfg.HTTP.Listen,
		"sendgrid_state", r.State.String(),
		"fallback", a.pipeline.FallbackName(),
	)

	if err := a.server().ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	a.logger.Info("sendgrid-bridge stopped")
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	r := a.gate.Initialize(cmd.Context())
	if err := printJSON(cmd.OutOrStdout(), map[string]string{
		"state":  r.State.String(),
		"reason": r.Reason,
	}); err != nil {
		return err
	}
	if !r.Ready() {
		return fmt.Errorf("sendgrid is not ready: %s", r.State)
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	days, err := cmd.Flags().GetInt("days")
	if err != nil {
		return err
	}

	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := a.client.Stats(cmd.Context(), days)
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runSend(cmd *cobra.Command, args []string) error {
	ev, err := readEvent(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := a.pipeline.Deliver(cmd.Context(), ev)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func readEvent(stdin io.Reader, path string) (forms.SendEvent, error) {
	var ev forms.SendEvent

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return ev, fmt.Errorf("failed to read event: %w", err)
	}

	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to parse event: %w", err)
	}
	return ev, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
