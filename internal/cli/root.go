package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// NewRootCommand creates the root command for the panora-sync binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "panora-sync",
		Short: "Unified third-party sync and webhook delivery",
		Long: `panora-sync pulls records from connected CRM, ticketing and ATS providers,
reconciles them into the unified model and delivers signed webhooks for every sync.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogLevel == "" {
				opts.LogLevel = os.Getenv("LOG_LEVEL")
			}
			if opts.LogLevel == "" {
				opts.LogLevel = "info"
			}
			if !slices.Contains(validLogLevels, opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of %v", opts.LogLevel, validLogLevels)
			}
			if _, err := logger.Init(opts.LogLevel); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), defaults to LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))

	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if logger.Logger != nil {
			logger.Error("Command failed", zap.Error(err))
			logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
