/*
PURPOSE:
  High-level runner that orchestrates a probe run.
  Session -> CRUD scenario -> rate-limit probe, each phase timed.

REQUIREMENTS:
  User-specified:
  - One authenticated session shared by every phase.
  - Wall-clock duration reported per phase and for the whole run.

  Implementation-discovered:
  - Subcommands run a subset of the phases.
  - The report must survive an aborted run so the CLI can still print it.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: Client, SessionManager, Scenario, Prober, internal/output.Timer

ERROR HANDLING:
  - Login without tokens and transport failures abort the run.
  - The partial report is returned together with the error.

IMPLEMENTATION RULES:
  - Strictly sequential; no goroutines.
  - Compile assertions before the first request.

USAGE:
  report, err := engine.Run(ctx, cfg, engine.Options{Phases: engine.AllPhases})

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go
  - internal/engine/scenario.go
  - internal/engine/prober.go

MAINTENANCE:
  - Add new phases here and to Phases.
*/

package engine

import (
	"context"
	"fmt"

	"github.com/daryltucker/todo-prober/internal/config"
	"github.com/daryltucker/todo-prober/internal/model"
	"github.com/daryltucker/todo-prober/internal/output"
)

// Phase names as they appear in the timing report.
const (
	PhaseSession   = "session"
	PhaseCRUD      = "crud"
	PhaseRateLimit = "rate-limit"
	PhaseTotal     = "total"
)

// Phases selects what a run exercises after logging in.
type Phases struct {
	CRUD      bool
	RateLimit bool
}

// AllPhases runs everything.
var AllPhases = Phases{CRUD: true, RateLimit: true}

// Options tune a run.
type Options struct {
	Phases Phases
	// Clock paces the prober and the timer. Nil means the wall clock.
	Clock Clock
}

// Run executes the selected phases against cfg.BaseURL.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*model.Report, error) {
	clock := opts.Clock
	if clock == nil {
		clock = WallClock()
	}

	timer := output.NewTimer(clock.Now)
	stopTotal := timer.Start(PhaseTotal)

	report := &model.Report{BaseURL: cfg.BaseURL, Timestamp: clock.Now()}
	abort := func(err error) (*model.Report, error) {
		stopTotal()
		report.Timings = timer.Phases()
		report.Error = err.Error()
		return report, err
	}

	client, err := NewClient(cfg)
	if err != nil {
		return abort(err)
	}

	var scenario *Scenario
	if opts.Phases.CRUD {
		scenario, err = NewScenario(client, cfg)
		if err != nil {
			return abort(err)
		}
	}

	// Session
	stop := timer.Start(PhaseSession)
	sm := NewSessionManager(client)
	report.RegisterStatus, err = sm.Register(ctx, cfg.Credentials)
	if err != nil {
		stop()
		return abort(err)
	}
	session, status, err := sm.Login(ctx, cfg.Credentials)
	report.LoginStatus = status
	if err != nil {
		stop()
		return abort(err)
	}
	client.SetSession(session)
	stop()

	// CRUD scenario
	if scenario != nil {
		stop = timer.Start(PhaseCRUD)
		report.Steps, err = scenario.Run(ctx)
		stop()
		if err != nil {
			return abort(fmt.Errorf("crud scenario: %w", err))
		}
	}

	// Rate limit
	if opts.Phases.RateLimit {
		stop = timer.Start(PhaseRateLimit)
		report.Probe, err = NewProber(client, cfg.RateLimit, clock).Run(ctx)
		stop()
		if err != nil {
			return abort(fmt.Errorf("rate-limit probe: %w", err))
		}
	}

	stopTotal()
	report.Timings = timer.Phases()
	return report, nil
}

// Login builds a client and returns it with a session attached.
// Used by commands that only need an authenticated client.
func Login(ctx context.Context, cfg *config.Config) (*Client, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	session, _, err := NewSessionManager(client).Login(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	client.SetSession(session)
	return client, nil
}
