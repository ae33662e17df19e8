package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/daryltucker/todo-prober/internal/model"
	"github.com/daryltucker/todo-prober/internal/output"
)

// ProbeState is the state of the rate-limit prober.
type ProbeState int

const (
	// StateBursting issues back-to-back GETs until the first non-200.
	StateBursting ProbeState = iota
	// StateCooling sleeps until just past the next window boundary.
	StateCooling
)

func (s ProbeState) String() string {
	switch s {
	case StateBursting:
		return "bursting"
	case StateCooling:
		return "cooling"
	default:
		return "unknown"
	}
}

// coolingMargin is added past the window boundary.
const coolingMargin = 100 * time.Millisecond

// CooldownFor returns how long to sleep after a throttle in pass (0-based),
// given the time elapsed since the probe started:
// window*(pass+1) - elapsed + 0.1s. A non-positive result means no sleep.
func CooldownFor(w model.RateLimitWindow, pass int, elapsed time.Duration) time.Duration {
	return time.Duration(pass+1)*w.Window() - elapsed + coolingMargin
}

// Prober bursts GETs at the collection to find and time the rate limit.
type Prober struct {
	client *Client
	window model.RateLimitWindow
	clock  Clock
}

// NewProber creates a Prober. A nil clock uses the wall clock.
func NewProber(c *Client, w model.RateLimitWindow, clock Clock) *Prober {
	if clock == nil {
		clock = WallClock()
	}
	return &Prober{client: c, window: w, clock: clock}
}

// Run executes every pass. Every non-200 counts as a throttle.
//
// The first response after a cooldown decides whether that pass recovered;
// after the final pass one extra GET is spent on it.
func (p *Prober) Run(ctx context.Context) (*model.ProbeReport, error) {
	w := p.window
	report := &model.ProbeReport{Window: w}
	start := p.clock.Now()

	output.Logger.Info("Starting rate-limit probe",
		"limit", w.Limit, "window_s", w.WindowSeconds, "passes", w.Passes,
		"continue_after_throttle", w.ContinueAfterThrottle)

	// awaiting is the index of the pass whose recovery the next response decides.
	awaiting := -1
	state := StateBursting
	var cur model.PassResult

	for pass := 0; pass < w.Passes; {
		switch state {
		case StateBursting:
			cur = model.PassResult{Pass: pass, ThrottledAt: -1}
			recheck := false

			for i := 0; i <= w.Limit; i++ {
				status, err := p.get(ctx)
				if err != nil {
					return report, err
				}
				cur.Requests++

				ok := status == http.StatusOK
				if awaiting >= 0 {
					report.Passes[awaiting].Recovered = &ok
					awaiting = -1
				}
				if recheck {
					cur.Recovered = &ok
					recheck = false
				}
				if ok {
					continue
				}

				cur.Throttles++
				if cur.ThrottledAt < 0 {
					cur.ThrottledAt = i
					cur.ThrottleStatus = status
				}
				output.Logger.Info("Rate limit hit", "pass", pass+1, "attempt", i, "status", status)

				if !w.ContinueAfterThrottle {
					break
				}
				// Legacy behaviour: sleep in place and keep bursting.
				d, err := p.cool(ctx, pass, start)
				cur.Cooldown += d
				if err != nil {
					report.Passes = append(report.Passes, cur)
					return report, err
				}
				recheck = true
			}

			if cur.Throttled() && !w.ContinueAfterThrottle {
				p.transition(pass, StateBursting, StateCooling)
				state = StateCooling
				continue
			}
			if !cur.Throttled() {
				output.Logger.Warn("Burst was never throttled", "pass", pass+1, "requests", cur.Requests)
			}
			report.Passes = append(report.Passes, cur)
			if recheck {
				awaiting = len(report.Passes) - 1
			}
			pass++

		case StateCooling:
			d, err := p.cool(ctx, pass, start)
			cur.Cooldown = d
			report.Passes = append(report.Passes, cur)
			if err != nil {
				return report, err
			}
			awaiting = len(report.Passes) - 1
			pass++
			p.transition(pass, StateCooling, StateBursting)
			state = StateBursting
		}
	}

	if awaiting >= 0 {
		status, err := p.get(ctx)
		if err != nil {
			return report, err
		}
		ok := status == http.StatusOK
		report.Passes[awaiting].Recovered = &ok
		output.Logger.Info("Recovery check", "status", status, "recovered", ok)
	}

	report.Elapsed = p.clock.Now().Sub(start)
	output.Logger.Info("Rate-limit probe complete", "seconds", report.Elapsed.Seconds(), "passed", report.Passed())
	return report, nil
}

func (p *Prober) get(ctx context.Context) (int, error) {
	resp, err := p.client.Get(ctx, EntriesPath, nil)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// cool sleeps for the cooldown of pass and returns how long it slept.
func (p *Prober) cool(ctx context.Context, pass int, start time.Time) (time.Duration, error) {
	d := CooldownFor(p.window, pass, p.clock.Now().Sub(start))
	if d <= 0 {
		output.Logger.Info("Window already elapsed, not sleeping", "pass", pass+1)
		return 0, nil
	}
	output.Logger.Info("Sleeping", "seconds", d.Seconds())
	if err := p.clock.Sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

func (p *Prober) transition(pass int, from, to ProbeState) {
	output.Logger.Debug("Prober state", "pass", pass+1, "from", from, "to", to)
}
