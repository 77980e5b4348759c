// Package cli wires cobra commands to a signal-aware context, a configured
// slog logger and the settings file.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/pkg/config"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

// Input is handed to every command run function.
type Input struct {
	Logger *slog.Logger
	Config *config.Config
	// Stdout receives command results; logs go to stderr.
	Stdout io.Writer
}

// CLI is the root command.
type CLI struct {
	rootCmd *cobra.Command
}

// NewCLI creates the root command with the persistent --config,
// --log-level and --log-format flags.
func NewCLI(name, desc string) *CLI {
	rootCmd := &cobra.Command{
		Use:           name,
		Short:         desc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagConfig, "", "YAML settings file")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(flagLogFormat, "", "log format (text, json)")
	return &CLI{rootCmd: rootCmd}
}

// AddCommands registers subcommands.
func (c *CLI) AddCommands(cmds ...*cobra.Command) {
	c.rootCmd.AddCommand(cmds...)
}

// Root returns the root command.
func (c *CLI) Root() *cobra.Command {
	return c.rootCmd
}

// Run executes the command line. SIGINT and SIGTERM cancel the context.
func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.rootCmd.ExecuteContext(ctx)
}

// WithContext adapts a run function to cobra's RunE. The settings file and
// logging flags are resolved from the flags the command inherits; commands
// executed without a root fall back to the defaults.
func WithContext(run func(ctx context.Context, input Input) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := config.Load(stringFlag(cmd, flagConfig))
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if v := stringFlag(cmd, flagLogLevel); v != "" {
			cfg.Log.Level = v
		}
		if v := stringFlag(cmd, flagLogFormat); v != "" {
			cfg.Log.Format = v
		}
		handler, err := cfg.LogHandler(cmd.ErrOrStderr())
		if err != nil {
			return errors.Wrap(err, "failed to configure logger")
		}

		return run(ctx, Input{
			Logger: slog.New(handler),
			Config: cfg,
			Stdout: cmd.OutOrStdout(),
		})
	}
}

func stringFlag(cmd *cobra.Command, name string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}
