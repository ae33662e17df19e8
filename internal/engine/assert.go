package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-json"
)

// Assertion is a compiled boolean expression over a fetched entry.
// The environment exposes `entry` (the decoded JSON object) and `status`
// (the HTTP status code).
type Assertion struct {
	Source  string
	program *vm.Program
}

func assertionEnv(entry map[string]any, status int) map[string]any {
	return map[string]any{
		"entry":  entry,
		"status": status,
	}
}

// CompileAssertion compiles src once so a typo surfaces before any request.
func CompileAssertion(src string) (*Assertion, error) {
	program, err := expr.Compile(src, expr.Env(assertionEnv(nil, 0)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile assertion %q: %w", src, err)
	}
	return &Assertion{Source: src, program: program}, nil
}

// Eval runs the assertion against a raw JSON body.
func (a *Assertion) Eval(body []byte, status int) (bool, error) {
	var entry map[string]any
	if err := json.Unmarshal(body, &entry); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out, err := expr.Run(a.program, assertionEnv(entry, status))
	if err != nil {
		return false, fmt.Errorf("evaluate assertion %q: %w", a.Source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("assertion %q did not evaluate to bool, got %T", a.Source, out)
	}
	return ok, nil
}
