/*
PURPOSE:
  CRUD scenario over one task entry: list, create, update, fetch,
  confirm, delete, with read-back checks in between.

REQUIREMENTS:
  User-specified:
  - Strictly sequential steps on a freshly authenticated session.
  - The id returned by create addresses every later call, both as the
    path segment and as the `id` query parameter.
  - Confirmation is a PUT with confirm=true and no body.
  - Steps are observed, not enforced: no step aborts the scenario.

  Implementation-discovered:
  - Each step returns an outcome with expected vs actual status and body.
  - Steps that need the id are skipped when create produced none.
  - The server turns an unapproved status=2 into doing + pendingApproval,
    so the update and confirm checks are configurable expressions.

ARCHITECTURE INTEGRATION:
  - Called by: engine.Run
  - Uses: Client, Assertion, internal/model

ERROR HANDLING:
  - Transport failures abort the scenario and are returned.
  - Everything else becomes a failed StepOutcome.

IMPLEMENTATION RULES:
  - State lives in ScenarioState and is passed to every step.

USAGE:
  sc, err := engine.NewScenario(client, cfg)
  outcomes, err := sc.Run(ctx)

SELF-HEALING INSTRUCTIONS:
  - If the server changes confirmation semantics, change assertions.confirmed in config.

RELATED FILES:
  - internal/engine/assert.go

MAINTENANCE:
  - Add steps to Steps(); order matters.
*/

package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"

	"github.com/daryltucker/todo-prober/internal/config"
	"github.com/daryltucker/todo-prober/internal/model"
	"github.com/daryltucker/todo-prober/internal/output"
)

// Step names, in execution order.
const (
	StepList            = "list"
	StepCreate          = "create"
	StepFetchCreated    = "fetch-created"
	StepFetchAgain      = "fetch-created-again"
	StepUpdateStatus    = "update-status"
	StepFetchUpdated    = "fetch-updated"
	StepConfirm         = "confirm"
	StepFetchConfirmed  = "fetch-confirmed"
	StepDelete          = "delete"
	StepFetchDeleted    = "fetch-deleted"
	StepListAfterDelete = "list-after-delete"
)

const bodyLimit = 500

// ScenarioState is the run context shared by the steps.
type ScenarioState struct {
	EntryID     string
	Created     *model.TaskEntry
	LastFetched *model.TaskEntry
}

// Step is one named action of the scenario.
type Step struct {
	Name    string
	NeedsID bool
	Run     func(ctx context.Context, st *ScenarioState) (model.StepOutcome, error)
}

// Scenario runs the CRUD lifecycle.
type Scenario struct {
	client    *Client
	template  config.EntryTemplate
	updated   *Assertion
	confirmed *Assertion
}

// NewScenario compiles the configured assertions.
func NewScenario(c *Client, cfg *config.Config) (*Scenario, error) {
	updated, err := CompileAssertion(cfg.Assertions.Updated)
	if err != nil {
		return nil, fmt.Errorf("assertions.updated: %w", err)
	}
	confirmed, err := CompileAssertion(cfg.Assertions.Confirmed)
	if err != nil {
		return nil, fmt.Errorf("assertions.confirmed: %w", err)
	}
	return &Scenario{
		client:    c,
		template:  cfg.Entry,
		updated:   updated,
		confirmed: confirmed,
	}, nil
}

// Steps returns the ordered step list.
func (s *Scenario) Steps() []Step {
	return []Step{
		{Name: StepList, Run: s.list},
		{Name: StepCreate, Run: s.create},
		{Name: StepFetchCreated, NeedsID: true, Run: s.fetchCreated},
		{Name: StepFetchAgain, NeedsID: true, Run: s.fetchAgain},
		{Name: StepUpdateStatus, NeedsID: true, Run: s.updateStatus},
		{Name: StepFetchUpdated, NeedsID: true, Run: s.fetchChecked(StepFetchUpdated, s.updated)},
		{Name: StepConfirm, NeedsID: true, Run: s.confirm},
		{Name: StepFetchConfirmed, NeedsID: true, Run: s.fetchChecked(StepFetchConfirmed, s.confirmed)},
		{Name: StepDelete, NeedsID: true, Run: s.delete},
		{Name: StepFetchDeleted, NeedsID: true, Run: s.fetchDeleted},
		{Name: StepListAfterDelete, NeedsID: true, Run: s.listAfterDelete},
	}
}

// Run executes every step in order and returns their outcomes. Only a
// transport failure stops it early.
func (s *Scenario) Run(ctx context.Context) ([]model.StepOutcome, error) {
	st := &ScenarioState{}
	var outcomes []model.StepOutcome

	for _, step := range s.Steps() {
		if step.NeedsID && st.EntryID == "" {
			out := model.StepOutcome{Name: step.Name, Result: model.ResultSkip, Detail: "no entry id from create"}
			output.Logger.Warn("Step skipped", "step", step.Name, "reason", out.Detail)
			outcomes = append(outcomes, out)
			continue
		}

		out, err := step.Run(ctx, st)
		if err != nil {
			return outcomes, fmt.Errorf("step %s: %w", step.Name, err)
		}

		attrs := []any{"step", out.Name, "status", out.Actual, "result", out.Result}
		if out.Detail != "" {
			attrs = append(attrs, "detail", out.Detail)
		}
		if out.Result == model.ResultPass {
			output.Logger.Info("Step", attrs...)
		} else {
			output.Logger.Warn("Step", attrs...)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func idQuery(id string) url.Values {
	return url.Values{"id": {id}}
}

// call issues the request and classifies the status.
func (s *Scenario) call(ctx context.Context, name, method, path string, query url.Values, body any, expected ...int) (model.StepOutcome, *Response, error) {
	out := model.StepOutcome{Name: name, Method: method, Path: path, Expected: expected}
	if len(query) > 0 {
		out.Path = path + "?" + query.Encode()
	}

	resp, err := s.client.Do(ctx, method, path, query, body)
	if err != nil {
		return out, nil, err
	}

	out.Actual = resp.StatusCode
	out.Duration = resp.Duration
	out.Body = truncate(string(resp.Body), bodyLimit)
	if slices.Contains(expected, resp.StatusCode) {
		out.Result = model.ResultPass
	} else {
		out.Result = model.ResultFail
		out.Detail = fmt.Sprintf("unexpected status %d, want %v", resp.StatusCode, expected)
	}
	return out, resp, nil
}

func fail(out model.StepOutcome, format string, args ...any) model.StepOutcome {
	out.Result = model.ResultFail
	out.Detail = fmt.Sprintf(format, args...)
	return out
}

func (s *Scenario) list(ctx context.Context, _ *ScenarioState) (model.StepOutcome, error) {
	out, resp, err := s.call(ctx, StepList, http.MethodGet, EntriesPath, nil, nil, http.StatusOK)
	if err != nil || out.Result != model.ResultPass {
		return out, err
	}

	var entries []model.TaskEntry
	if err := resp.Decode(&entries); err != nil {
		return fail(out, "%v", err), nil
	}
	out.Detail = fmt.Sprintf("%d entries", len(entries))
	return out, nil
}

func (s *Scenario) create(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	payload := model.TaskEntry{
		Title:       s.template.Title,
		Description: s.template.Description,
		Status:      model.StatusToDo,
	}
	out, resp, err := s.call(ctx, StepCreate, http.MethodPost, EntriesPath, nil, payload, http.StatusOK, http.StatusCreated)
	if err != nil || out.Result != model.ResultPass {
		return out, err
	}

	var created model.TaskEntry
	if err := resp.Decode(&created); err != nil {
		return fail(out, "%v", err), nil
	}
	if created.ID == "" {
		return fail(out, "response carries no id"), nil
	}
	if _, err := uuid.Parse(created.ID); err != nil {
		output.Logger.Warn("Entry id is not a GUID", "id", created.ID)
	}

	st.EntryID = created.ID
	st.Created = &created
	out.Detail = "id=" + created.ID
	return out, nil
}

// fetch GETs the entry by id and decodes it.
func (s *Scenario) fetch(ctx context.Context, name string, st *ScenarioState) (model.StepOutcome, *Response, *model.TaskEntry, error) {
	out, resp, err := s.call(ctx, name, http.MethodGet, EntryPath(st.EntryID), idQuery(st.EntryID), nil, http.StatusOK)
	if err != nil || out.Result != model.ResultPass {
		return out, resp, nil, err
	}

	var entry model.TaskEntry
	if err := resp.Decode(&entry); err != nil {
		return fail(out, "%v", err), resp, nil, nil
	}
	return out, resp, &entry, nil
}

func sameContent(a, b *model.TaskEntry) error {
	if a.Title != b.Title {
		return fmt.Errorf("title %q, want %q", a.Title, b.Title)
	}
	if a.Description != b.Description {
		return fmt.Errorf("description %q, want %q", a.Description, b.Description)
	}
	if a.Status != b.Status {
		return fmt.Errorf("status %s, want %s", a.Status, b.Status)
	}
	return nil
}

func (s *Scenario) fetchCreated(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	out, _, entry, err := s.fetch(ctx, StepFetchCreated, st)
	if err != nil || entry == nil {
		return out, err
	}
	st.LastFetched = entry

	want := &model.TaskEntry{Title: s.template.Title, Description: s.template.Description, Status: model.StatusToDo}
	if err := sameContent(entry, want); err != nil {
		return fail(out, "round trip: %v", err), nil
	}
	return out, nil
}

func (s *Scenario) fetchAgain(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	out, _, entry, err := s.fetch(ctx, StepFetchAgain, st)
	if err != nil || entry == nil {
		return out, err
	}
	if st.LastFetched == nil {
		return fail(out, "no earlier fetch to compare with"), nil
	}
	if err := sameContent(entry, st.LastFetched); err != nil {
		return fail(out, "repeated fetch differs: %v", err), nil
	}
	return out, nil
}

func (s *Scenario) updateStatus(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	update := *st.Created
	update.Status = model.StatusDone
	out, _, err := s.call(ctx, StepUpdateStatus, http.MethodPut, EntryPath(st.EntryID), idQuery(st.EntryID), update,
		http.StatusOK, http.StatusNoContent)
	return out, err
}

// fetchChecked fetches the entry and evaluates an assertion on its body.
func (s *Scenario) fetchChecked(name string, a *Assertion) func(context.Context, *ScenarioState) (model.StepOutcome, error) {
	return func(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
		out, resp, entry, err := s.fetch(ctx, name, st)
		if err != nil || entry == nil {
			return out, err
		}
		st.LastFetched = entry

		ok, err := a.Eval(resp.Body, resp.StatusCode)
		if err != nil {
			return fail(out, "%v", err), nil
		}
		if !ok {
			return fail(out, "assertion failed: %s (status=%s)", a.Source, entry.Status), nil
		}
		out.Detail = "status=" + entry.Status.String()
		return out, nil
	}
}

func (s *Scenario) confirm(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	q := idQuery(st.EntryID)
	q.Set("confirm", "true")
	out, _, err := s.call(ctx, StepConfirm, http.MethodPut, EntryPath(st.EntryID), q, nil,
		http.StatusOK, http.StatusNoContent)
	return out, err
}

func (s *Scenario) delete(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	out, _, err := s.call(ctx, StepDelete, http.MethodDelete, EntryPath(st.EntryID), idQuery(st.EntryID), nil,
		http.StatusOK, http.StatusNoContent)
	return out, err
}

func (s *Scenario) fetchDeleted(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	out, _, err := s.call(ctx, StepFetchDeleted, http.MethodGet, EntryPath(st.EntryID), idQuery(st.EntryID), nil,
		http.StatusNotFound)
	return out, err
}

func (s *Scenario) listAfterDelete(ctx context.Context, st *ScenarioState) (model.StepOutcome, error) {
	out, resp, err := s.call(ctx, StepListAfterDelete, http.MethodGet, EntriesPath, nil, nil, http.StatusOK)
	if err != nil || out.Result != model.ResultPass {
		return out, err
	}

	var entries []model.TaskEntry
	if err := resp.Decode(&entries); err != nil {
		return fail(out, "%v", err), nil
	}
	for _, e := range entries {
		if e.ID == st.EntryID {
			return fail(out, "deleted entry %s still listed", st.EntryID), nil
		}
	}
	out.Detail = fmt.Sprintf("%d entries", len(entries))
	return out, nil
}

