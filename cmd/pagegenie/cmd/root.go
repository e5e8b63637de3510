// Package cmd provides the CLI commands for pagegenie.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/logging"
	"github.com/Aman-CERP/pagegenie/internal/profiling"
	"github.com/Aman-CERP/pagegenie/pkg/version"
)

// Persistent flags
var (
	debugMode      bool
	configDir      string
	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profile     *profiling.Session
)

// NewRootCmd creates the root command for the pagegenie CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagegenie",
		Short: "Retrieval-augmented page editing server",
		Long: `pagegenie keeps a set of HTML pages indexed for hybrid retrieval
(keyword + semantic, fused with Reciprocal Rank Fusion) and answers chat
requests about them. A request that names a page and produces a full HTML
document replaces that page; the previous content is archived and every
open viewer reloads.

Run 'pagegenie serve' in a directory with a pages/ folder to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("pagegenie version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.pagegenie/logs/")
	cmd.PersistentFlags().StringVar(&configDir, "config", ".", "Project directory holding .pagegenie.yaml and .env")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newVersionsCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfilingAndLogging(cmd *cobra.Command, args []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = s
	}
	return startLogging(cmd, args)
}

func stopProfilingAndLogging(cmd *cobra.Command, args []string) error {
	err := profile.Stop()
	profile = nil
	if err != nil {
		slog.Warn("profile_write_failed", slog.String("error", err.Error()))
	}
	return stopLogging(cmd, args)
}

// startLogging installs the default logger. --debug logs JSON to the
// rotating file; otherwise warnings go to stderr as text. The mcp
// command replaces this with file-only logging.
func startLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "mcp" {
		return nil
	}
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
		return nil
	}
	slog.SetDefault(logging.NewTextLogger(cmd.ErrOrStderr(), "warn"))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	var se *silentError
	if err != nil && !errors.As(err, &se) {
		fmt.Fprintln(os.Stderr, perrors.FormatForCLI(err))
	}
	return err
}

// silentError fails the command without printing, for errors the command
// has already reported.
type silentError struct{ err error }

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

func silent(err error) error {
	if err == nil {
		return nil
	}
	return &silentError{err: err}
}
