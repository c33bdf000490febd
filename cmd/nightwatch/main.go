// Command nightwatch runs the autonomous production-error triage service:
// once per invocation it pulls fresh errors, investigates each with a
// tool-using LLM agent, correlates findings to recent merges, persists
// durable knowledge, and — when confident — opens tracking issues and a
// draft fix pull request.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nightwatch-dev/nightwatch/pkg/version"
)

var (
	configDir string
	verbose   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Interrupted.")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nightwatch",
		Short:         "AI-powered production error analysis — run once, analyze everything, report, done.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "path to configuration directory")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "show iteration details and use text-formatted logs")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}

func defaultConfigDir() string {
	if v := os.Getenv("NIGHTWATCH_CONFIG_DIR"); v != "" {
		return v
	}
	return "."
}

// setupLogger builds the ambient logger: JSON in production, a
// human-readable text handler under --verbose, matching the platform's
// bootstrap style in cmd/tarsy/main.go.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if verbose {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
