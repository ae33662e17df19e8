/*
PURPOSE:
  Defines the core data structures used throughout the ToDo prober.
  These models represent the API's wire objects and the probe's findings.

REQUIREMENTS:
  User-specified:
  - Carry credentials, the bearer session and the task entry under test.
  - Record per-step outcomes, rate-limit passes and phase timings.

  Implementation-discovered:
  - The server serialises camelCase JSON and integer status enums.
  - Server timestamps are not always RFC3339 with a zone, so they stay strings.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/output, internal/cli
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Time and time.Duration for measured values.

USAGE:
  entry := model.TaskEntry{Title: "...", Status: model.StatusToDo}

SELF-HEALING INSTRUCTIONS:
  - If the server adds entry fields, add them as optional pointers so PUT round-trips keep them.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go

MAINTENANCE:
  - Update when the API contract or the report layout changes.
*/

package model

import (
	"time"
)

// Credentials are used for both the register and the login call.
type Credentials struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}

// Session is the token pair returned by a successful login.
type Session struct {
	TokenType    string `json:"tokenType,omitempty"`
	AccessToken  string `json:"accessToken"`
	ExpiresIn    int    `json:"expiresIn,omitempty"` // seconds
	RefreshToken string `json:"refreshToken"`
}

// Status is the task entry state enum as the server encodes it.
type Status int

const (
	StatusToDo  Status = 0
	StatusDoing Status = 1
	StatusDone  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusToDo:
		return "to-do"
	case StatusDoing:
		return "doing"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// TaskEntry mirrors a ToDoEntry. Server-owned fields are optional so the
// full-entry PUT sends back exactly what the server returned.
type TaskEntry struct {
	ID              string  `json:"id,omitempty"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Status          Status  `json:"status"`
	PendingApproval *bool   `json:"pendingApproval,omitempty"`
	CreateTime      string  `json:"createTime,omitempty"`
	UpdateTime      *string `json:"updateTime,omitempty"`
	ApprovedTime    *string `json:"approvedTime,omitempty"`
	CreatedBy       string  `json:"createdBy,omitempty"`
	UpdatedBy       *string `json:"updatedBy,omitempty"`
	ApprovedBy      *string `json:"approvedBy,omitempty"`
}

// RateLimitWindow drives the prober's loop bounds.
type RateLimitWindow struct {
	Limit         int `json:"limit" yaml:"limit"`
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
	Passes        int `json:"passes" yaml:"passes"`

	// ContinueAfterThrottle keeps bursting after the first throttle and
	// sleeps in place for every rejected request.
	ContinueAfterThrottle bool `json:"continue_after_throttle" yaml:"continue_after_throttle"`
}

// Window returns the cooldown window as a duration.
func (w RateLimitWindow) Window() time.Duration {
	return time.Duration(w.WindowSeconds) * time.Second
}

// PhaseTiming is one entry of the timing report.
type PhaseTiming struct {
	Name    string        `json:"name"`
	Start   time.Time     `json:"start"`
	Elapsed time.Duration `json:"elapsed"`
}

// StepResult classifies a scenario step.
type StepResult string

const (
	ResultPass StepResult = "pass"
	ResultFail StepResult = "fail"
	ResultSkip StepResult = "skip"
)

// StepOutcome is the observed result of one named scenario step.
type StepOutcome struct {
	Name     string        `json:"name"`
	Method   string        `json:"method"`
	Path     string        `json:"path"`
	Expected []int         `json:"expected_status,omitempty"`
	Actual   int           `json:"actual_status"`
	Result   StepResult    `json:"result"`
	Detail   string        `json:"detail,omitempty"`
	Body     string        `json:"body,omitempty"`
	Duration time.Duration `json:"duration"`
}

// PassResult records one burst of the rate-limit probe.
type PassResult struct {
	Pass           int           `json:"pass"`
	Requests       int           `json:"requests"`
	Throttles      int           `json:"throttles"`
	ThrottledAt    int           `json:"throttled_at"` // -1 when the burst was never throttled
	ThrottleStatus int           `json:"throttle_status,omitempty"`
	Cooldown       time.Duration `json:"cooldown"`

	// Recovered is set from the first request after cooling.
	Recovered *bool `json:"recovered,omitempty"`
}

// Throttled reports whether the burst hit the limit.
func (p PassResult) Throttled() bool {
	return p.ThrottledAt >= 0
}

// ProbeReport is the outcome of the rate-limit phase.
type ProbeReport struct {
	Window  RateLimitWindow `json:"window"`
	Passes  []PassResult    `json:"passes"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Passed is true when the limiter throttled at least once and every
// throttled pass was followed by a successful request.
func (r *ProbeReport) Passed() bool {
	if r == nil {
		return false
	}
	throttled := false
	for _, p := range r.Passes {
		if !p.Throttled() {
			continue
		}
		throttled = true
		if p.Recovered == nil || !*p.Recovered {
			return false
		}
	}
	return throttled
}

// Report aggregates a full run.
type Report struct {
	BaseURL        string        `json:"base_url"`
	Timestamp      time.Time     `json:"timestamp"`
	RegisterStatus int           `json:"register_status"`
	LoginStatus    int           `json:"login_status"`
	Steps          []StepOutcome `json:"steps,omitempty"`
	Probe          *ProbeReport  `json:"probe,omitempty"`
	Timings        []PhaseTiming `json:"timings"`
	Error          string        `json:"error,omitempty"`
}

// Failed returns the steps that did not pass. Skipped steps count as failures.
func (r *Report) Failed() []StepOutcome {
	var failed []StepOutcome
	for _, s := range r.Steps {
		if s.Result != ResultPass {
			failed = append(failed, s)
		}
	}
	return failed
}

// Passed is true when every step passed and, if the probe ran, it passed too.
func (r *Report) Passed() bool {
	if r.Error != "" || len(r.Failed()) > 0 {
		return false
	}
	if r.Probe != nil && !r.Probe.Passed() {
		return false
	}
	return true
}
