package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/todo-prober/internal/config"
	"github.com/daryltucker/todo-prober/internal/engine"
)

func TestAssertion_Eval(t *testing.T) {
	defaults := config.DefaultConfig().Assertions

	tests := []struct {
		name string
		src  string
		body string
		want bool
	}{
		{"done", defaults.Updated, `{"status":2}`, true},
		{"parked for approval", defaults.Updated, `{"status":1,"pendingApproval":true}`, true},
		{"still to-do", defaults.Updated, `{"status":0,"pendingApproval":false}`, false},
		{"approved", defaults.Confirmed, `{"status":2,"approvedTime":"2024-03-01T12:00:00Z"}`, true},
		{"approval flag cleared", defaults.Confirmed, `{"status":2,"approvedTime":null,"pendingApproval":false}`, true},
		{"still pending", defaults.Confirmed, `{"status":1,"approvedTime":null,"pendingApproval":true}`, false},
		{"status code", `status == 200 && entry.title == "x"`, `{"title":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := engine.CompileAssertion(tt.src)
			require.NoError(t, err)

			got, err := a.Eval([]byte(tt.body), 200)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileAssertion_Rejects(t *testing.T) {
	for _, src := range []string{"entry.status ==", `"not a bool"`, "1 + 1"} {
		_, err := engine.CompileAssertion(src)
		assert.Error(t, err, src)
	}
}

func TestAssertion_EvalMalformedBody(t *testing.T) {
	a, err := engine.CompileAssertion("entry.status == 2")
	require.NoError(t, err)

	_, err = a.Eval([]byte("<html>"), 200)
	assert.ErrorIs(t, err, engine.ErrMalformedResponse)
}
