/*
PURPOSE:
  Defines the 'run', 'crud' and 'rate-limit' subcommands.
  Each runs the session phase plus a selection of probe phases.

REQUIREMENTS:
  User-specified:
  - Run the full probe.
  - Flags override the recognised config options.

  Implementation-discovered:
  - Need to load config first, then apply only the flags the user set.
  - The report is printed even when the run aborts.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error if config load fails or the run aborts.
  - With --strict, a failing report returns ErrChecksFailed.

IMPLEMENTATION RULES:
  - Logic: Load Config -> Override -> Validate -> engine.Run -> write report.

USAGE:
  todo-prober run --base-url http://localhost:8080

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config yaml keys generally.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"errors"
	"fmt"

	"github.com/daryltucker/todo-prober/internal/config"
	"github.com/daryltucker/todo-prober/internal/engine"
	"github.com/daryltucker/todo-prober/internal/output"
	"github.com/spf13/cobra"
)

// ErrChecksFailed is returned under --strict when the report did not pass.
var ErrChecksFailed = errors.New("one or more checks failed")

type probeFlags struct {
	baseURL               string
	email                 string
	password              string
	limit                 int
	window                int
	passes                int
	continueAfterThrottle bool
	skipRateLimit         bool
	format                string
	strict                bool
}

func (f *probeFlags) addTarget(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "API root URL (overrides config)")
	cmd.Flags().StringVar(&f.email, "email", "", "Login email (overrides config)")
	cmd.Flags().StringVar(&f.password, "password", "", "Login password (overrides config)")
}

func (f *probeFlags) addReport(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", output.FormatText, "Report format: text, json or csv")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Exit non-zero when any check fails")
}

func (f *probeFlags) addRateLimit(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Requests per burst before the server should throttle")
	cmd.Flags().IntVar(&f.window, "window", 0, "Assumed cooldown window in seconds")
	cmd.Flags().IntVar(&f.passes, "passes", 0, "Number of bursts")
	cmd.Flags().BoolVar(&f.continueAfterThrottle, "continue-after-throttle", false,
		"Keep bursting after a throttle, sleeping for every rejected request")
}

// apply copies the flags the user actually set onto cfg.
func (f *probeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	changed := func(name string) bool {
		fl := flags.Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("email") {
		cfg.Credentials.Email = f.email
	}
	if changed("password") {
		cfg.Credentials.Password = f.password
	}
	if changed("limit") {
		cfg.RateLimit.Limit = f.limit
	}
	if changed("window") {
		cfg.RateLimit.WindowSeconds = f.window
	}
	if changed("passes") {
		cfg.RateLimit.Passes = f.passes
	}
	if changed("continue-after-throttle") {
		cfg.RateLimit.ContinueAfterThrottle = f.continueAfterThrottle
	}
}

func loadConfig(cmd *cobra.Command, root *rootOptions, f *probeFlags) (*config.Config, error) {
	cfg, err := config.Load(root.cfgFile)
	if err != nil {
		return nil, err
	}
	f.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runProbe(cmd *cobra.Command, root *rootOptions, f *probeFlags, phases engine.Phases) error {
	cfg, err := loadConfig(cmd, root, f)
	if err != nil {
		return err
	}

	writer, err := output.NewReportWriter(f.format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	report, runErr := engine.Run(cmd.Context(), cfg, engine.Options{Phases: phases})
	if report != nil {
		if err := writer.Write(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if f.strict && !report.Passed() {
		return ErrChecksFailed
	}
	return nil
}

func newRunCmd(root *rootOptions) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full probe",
		Long: `Executes the full probe against the ToDo API.
The process follows a strict protocol:
1. Session: registers the account (failure tolerated) and logs in.
2. CRUD: list, create, fetch, update, confirm, delete one entry, reading it back in between.
3. Rate limit: bursts limit+1 GETs per pass, cools down after each throttle, and
   checks that the server accepts requests again.

Every phase is timed. The report goes to stdout, logs to stderr.`,
		Example: `  # Run with defaults (uses todo_prober.yaml when present)
  todo-prober run

  # Probe a local container, JSON report
  todo-prober run --base-url http://localhost:8080 --format json

  # Quick rate-limit pass count and CI exit code
  todo-prober run --passes 2 --strict

  # CRUD only
  todo-prober run --skip-rate-limit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, root, f, engine.Phases{CRUD: true, RateLimit: !f.skipRateLimit})
		},
	}

	f.addTarget(cmd)
	f.addRateLimit(cmd)
	f.addReport(cmd)
	cmd.Flags().BoolVar(&f.skipRateLimit, "skip-rate-limit", false, "Skip the rate-limit phase")
	return cmd
}

func newCRUDCmd(root *rootOptions) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "crud",
		Short: "Run the session and CRUD scenario only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, root, f, engine.Phases{CRUD: true})
		},
	}
	f.addTarget(cmd)
	f.addReport(cmd)
	return cmd
}

func newRateLimitCmd(root *rootOptions) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "rate-limit",
		Short: "Run the session and rate-limit probe only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, root, f, engine.Phases{RateLimit: true})
		},
	}
	f.addTarget(cmd)
	f.addRateLimit(cmd)
	f.addReport(cmd)
	return cmd
}
