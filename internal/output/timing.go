package output

import (
	"sync"
	"time"

	"github.com/daryltucker/todo-prober/internal/model"
)

// Timer records wall-clock durations of named phases in start order.
// It never affects control flow.
type Timer struct {
	now    func() time.Time
	mu     sync.Mutex
	phases []model.PhaseTiming
}

// NewTimer creates a Timer. A nil now uses time.Now.
func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Start marks the beginning of a phase. The returned function ends it,
// logs the elapsed seconds and returns the elapsed time.
func (t *Timer) Start(name string) func() time.Duration {
	start := t.now()

	t.mu.Lock()
	idx := len(t.phases)
	t.phases = append(t.phases, model.PhaseTiming{Name: name, Start: start})
	t.mu.Unlock()

	return func() time.Duration {
		elapsed := t.now().Sub(start)

		t.mu.Lock()
		t.phases[idx].Elapsed = elapsed
		t.mu.Unlock()

		Logger.Info("Phase complete", "phase", name, "seconds", elapsed.Seconds())
		return elapsed
	}
}

// Phases returns a copy of the recorded timings.
func (t *Timer) Phases() []model.PhaseTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.PhaseTiming, len(t.phases))
	copy(out, t.phases)
	return out
}
