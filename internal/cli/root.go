/*
PURPOSE:
  Defines the root Cobra command for the ToDo prober CLI.
  Handles global flags and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Commands are built fresh per invocation so tests do not share flag state.
  - SIGINT/SIGTERM cancel the context; the prober's sleeps honour it.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/todo-prober/main.go
  - Calls: Child commands (run, crud, rate-limit, list-entries, config)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to NewRootCmd().

RELATED FILES:
  - cmd/todo-prober/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/todo-prober/internal/output"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "todo-prober",
		Short: "Conformance and rate-limit probe for the ToDo API",
		Long: `A black-box client for the ToDo API. Registers and logs in, drives one
task entry through its CRUD lifecycle, and bursts requests to time the
server's rate limiter. Use 'run --help' for options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := output.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			output.SetLogger(output.NewLogger(cmd.ErrOrStderr(), level))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./todo_prober.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newRunCmd(opts),
		newCRUDCmd(opts),
		newRateLimitCmd(opts),
		newListEntriesCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}
