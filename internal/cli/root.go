package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"costmanager/internal/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBDir    string
	Format   string // "json" | "text"
	LogLevel string

	logger *log.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the costs command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Personal cost manager",
		Long: `Record and query personal costs in a local SQLite database.

The database file CostManagerDB.sqlite lives in --db-dir (or COSTS_DB_DIR)
and is created with its schema on first use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			LoadEnvFile()
			level := opts.LogLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			opts.logger = SetupLogger(level, cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBDir, "db-dir", "", "directory holding the cost database (overrides COSTS_DB_DIR)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error, overrides LOG_LEVEL)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewMonthCommand(opts))
	cmd.AddCommand(NewYearCommand(opts))
	cmd.AddCommand(NewLastCommand(opts))
	cmd.AddCommand(NewRecentCommand(opts))
	cmd.AddCommand(NewCategoryCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// runtime loads the configuration and wires a Runtime. The caller closes it.
func (o *RootOptions) runtime() (*Runtime, error) {
	cfg, err := LoadAndValidateConfig(o.DBDir, o.LogLevel)
	if err != nil {
		return nil, usageError("invalid configuration", err)
	}
	logger := o.logger
	if logger == nil {
		logger = SetupLogger(cfg.LogLevel, os.Stderr)
	}
	return NewRuntime(cfg, logger)
}

// withRuntime runs fn against a fresh Runtime and reports failures through
// the formatter.
func (o *RootOptions) withRuntime(cmd *cobra.Command, fn func(rt *Runtime, out *OutputFormatter) error) (err error) {
	out := o.formatter(cmd)
	defer func() {
		if err != nil {
			_ = out.Error(err)
		}
	}()

	rt, err := o.runtime()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			rt.Logger.Warn("Failed to close runtime",
				log.FieldOperation, log.OpShutdown,
				log.FieldError, cerr)
		}
	}()

	cmd.SetContext(log.NewContext(cmd.Context(), rt.Logger))
	return fn(rt, out)
}
