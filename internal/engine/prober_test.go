package engine_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/todo-prober/internal/engine"
	"github.com/daryltucker/todo-prober/internal/engine/enginetest"
	"github.com/daryltucker/todo-prober/internal/model"
)

// proberTarget starts a rate-limited fake on a fake clock, logs in and moves
// the clock to a fresh window so the login permit does not count.
func proberTarget(t *testing.T, serverLimit int) (*enginetest.Server, *engine.Client, *enginetest.FakeClock) {
	t.Helper()
	clock := enginetest.NewFakeClock()
	srv, cfg := newTarget(t, enginetest.Options{Now: clock.Now, Limit: serverLimit, Window: time.Minute})
	client := loggedIn(t, srv, cfg)
	clock.Advance(time.Minute)
	return srv, client, clock
}

func TestCooldownFor(t *testing.T) {
	w := model.RateLimitWindow{Limit: 30, WindowSeconds: 60, Passes: 5}

	tests := []struct {
		pass    int
		elapsed time.Duration
		want    time.Duration
	}{
		{0, 0, 60100 * time.Millisecond},
		{0, 2 * time.Second, 58100 * time.Millisecond},
		{1, 60100 * time.Millisecond, 60 * time.Second},
		{2, 125 * time.Second, 55100 * time.Millisecond},
		{0, 70 * time.Second, -9900 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.CooldownFor(w, tt.pass, tt.elapsed), "pass %d elapsed %s", tt.pass, tt.elapsed)
	}
}

func TestProbeState_String(t *testing.T) {
	assert.Equal(t, "bursting", engine.StateBursting.String())
	assert.Equal(t, "cooling", engine.StateCooling.String())
}

func TestProber_StopsAtFirstThrottle(t *testing.T) {
	srv, client, clock := proberTarget(t, 3)
	before := len(srv.Requests())

	w := model.RateLimitWindow{Limit: 3, WindowSeconds: 60, Passes: 3}
	report, err := engine.NewProber(client, w, clock).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Passes, 3)
	for i, p := range report.Passes {
		assert.Equal(t, i, p.Pass)
		assert.Equal(t, 4, p.Requests, "pass %d", i)
		assert.Equal(t, 1, p.Throttles)
		assert.Equal(t, 3, p.ThrottledAt)
		assert.Equal(t, http.StatusTooManyRequests, p.ThrottleStatus)
		require.NotNil(t, p.Recovered, "pass %d", i)
		assert.True(t, *p.Recovered, "pass %d", i)
	}

	assert.Equal(t, []time.Duration{60100 * time.Millisecond, 60 * time.Second, 60 * time.Second}, clock.Sleeps())
	assert.Equal(t, 60100*time.Millisecond, report.Passes[0].Cooldown)
	assert.Equal(t, 180100*time.Millisecond, report.Elapsed)
	assert.True(t, report.Passed())

	// 3 bursts of 4 plus the final recovery check.
	assert.Equal(t, 13, len(srv.Requests())-before)
}

func TestProber_LegacyContinueAfterThrottle(t *testing.T) {
	_, client, clock := proberTarget(t, 1)

	w := model.RateLimitWindow{Limit: 3, WindowSeconds: 60, Passes: 1, ContinueAfterThrottle: true}
	report, err := engine.NewProber(client, w, clock).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Passes, 1)
	p := report.Passes[0]
	assert.Equal(t, 4, p.Requests)
	assert.Equal(t, 1, p.ThrottledAt)
	// The second throttle lands in the same window the first cooldown
	// moved into; its cooldown is already spent so nothing is slept.
	assert.Equal(t, 2, p.Throttles)
	assert.Equal(t, []time.Duration{60100 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, 60100*time.Millisecond, p.Cooldown)

	require.NotNil(t, p.Recovered)
	assert.False(t, *p.Recovered)
	assert.False(t, report.Passed())
}

func TestProber_SameLimiterStopMode(t *testing.T) {
	_, client, clock := proberTarget(t, 1)

	w := model.RateLimitWindow{Limit: 3, WindowSeconds: 60, Passes: 1}
	report, err := engine.NewProber(client, w, clock).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Passes, 1)
	p := report.Passes[0]
	assert.Equal(t, 2, p.Requests)
	assert.Equal(t, 1, p.Throttles)
	assert.Equal(t, 1, p.ThrottledAt)
	require.NotNil(t, p.Recovered)
	assert.True(t, *p.Recovered)
	assert.True(t, report.Passed())
}

func TestProber_NeverThrottled(t *testing.T) {
	srv, client, clock := proberTarget(t, 0)
	before := len(srv.Requests())

	w := model.RateLimitWindow{Limit: 3, WindowSeconds: 60, Passes: 2}
	report, err := engine.NewProber(client, w, clock).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Passes, 2)
	for _, p := range report.Passes {
		assert.False(t, p.Throttled())
		assert.Equal(t, 4, p.Requests)
		assert.Nil(t, p.Recovered)
	}
	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 8, len(srv.Requests())-before, "no recovery check without a throttle")
	assert.False(t, report.Passed())
}

func TestProber_CanceledContext(t *testing.T) {
	_, client, clock := proberTarget(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := model.RateLimitWindow{Limit: 3, WindowSeconds: 60, Passes: 1}
	report, err := engine.NewProber(client, w, clock).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Passes)
}
