package output

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/todo-prober/internal/model"
)

func quietLogger(t *testing.T) {
	t.Helper()
	prev := Logger
	SetLogger(NewLogger(&bytes.Buffer{}, slog.LevelError))
	t.Cleanup(func() { SetLogger(prev) })
}

func sampleReport() *model.Report {
	recovered := true
	return &model.Report{
		BaseURL:        "http://localhost:8080",
		Timestamp:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		RegisterStatus: 400,
		LoginStatus:    200,
		Steps: []model.StepOutcome{
			{Name: "list", Method: "GET", Path: "/ToDoEntries", Expected: []int{200}, Actual: 200, Result: model.ResultPass, Duration: 20 * time.Millisecond},
			{Name: "create", Method: "POST", Path: "/ToDoEntries", Expected: []int{200, 201}, Actual: 201, Result: model.ResultPass},
		},
		Probe: &model.ProbeReport{
			Window: model.RateLimitWindow{Limit: 3, WindowSeconds: 60, Passes: 1},
			Passes: []model.PassResult{
				{Pass: 0, Requests: 4, Throttles: 1, ThrottledAt: 3, ThrottleStatus: 429, Cooldown: 60100 * time.Millisecond, Recovered: &recovered},
			},
		},
		Timings: []model.PhaseTiming{
			{Name: "total", Elapsed: 61 * time.Second},
			{Name: "rate-limit", Elapsed: 60 * time.Second},
		},
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", Redact(""))
	assert.Equal(t, "******", Redact("secret"))
	assert.Equal(t, "eyJh...Xk9Q", Redact("eyJhbGciOiJIUzI1NiJ9.Xk9Q"))
}

func TestTimer(t *testing.T) {
	quietLogger(t)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	timer := NewTimer(func() time.Time { return now })

	stopTotal := timer.Start("total")
	stopCRUD := timer.Start("crud")
	now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, stopCRUD())
	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, 2*time.Second, stopTotal())

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "total", phases[0].Name)
	assert.Equal(t, 2*time.Second, phases[0].Elapsed)
	assert.Equal(t, "crud", phases[1].Name)
	assert.Equal(t, 1500*time.Millisecond, phases[1].Elapsed)
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)

	require.NoError(t, w.Write(sampleReport()))
	require.NoError(t, w.Write(&model.Report{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	// header + 2 steps + 1 pass + 2 phases; the empty report adds nothing
	require.Len(t, records, 6)
	assert.Equal(t, csvHeader, records[0])

	assert.Equal(t, []string{"step", "list", "GET", "/ToDoEntries", "200", "200", "pass", "", "0.0200"}, records[1])
	assert.Equal(t, "200|201", records[2][4])

	pass := records[3]
	assert.Equal(t, "pass", pass[0])
	assert.Equal(t, "pass-1", pass[1])
	assert.Equal(t, "429", pass[5])
	assert.Equal(t, "throttled", pass[6])
	assert.Equal(t, "requests=4 throttles=1 throttled_at=3 cooldown_s=60.1 recovered=true", pass[7])

	assert.Equal(t, []string{"phase", "total", "", "", "", "", "", "", "61.0000"}, records[4])
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	require.NoError(t, w.Write(sampleReport()))
	require.NoError(t, w.Write(sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got model.Report
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "http://localhost:8080", got.BaseURL)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, model.ResultPass, got.Steps[1].Result)
	require.NotNil(t, got.Probe)
	assert.Equal(t, 3, got.Probe.Passes[0].ThrottledAt)
	assert.True(t, got.Passed())
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf).Write(sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "Target: http://localhost:8080")
	assert.Contains(t, out, "Register: 400  Login: 200")
	assert.Contains(t, out, "[PASS] List")
	assert.Contains(t, out, "Rate limit (3 requests / 60s, 1 passes)")
	assert.Contains(t, out, "Pass 1: throttled at request 3 (status 429), cooled 60.1s, recovered=true")
	assert.Contains(t, out, "Rate-Limit")
	assert.True(t, strings.HasSuffix(out, "Result: PASSED\n"))
}

func TestTextWriter_Failure(t *testing.T) {
	r := sampleReport()
	r.Probe = nil
	r.Steps[1].Result = model.ResultFail
	r.Steps[1].Detail = "expected status 200|201, got 500"
	r.Error = "aborted"

	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf).Write(r))
	out := buf.String()

	assert.Contains(t, out, "[FAIL] Create")
	assert.Contains(t, out, "Error: aborted")
	assert.NotContains(t, out, "Rate limit")
	assert.True(t, strings.HasSuffix(out, "Result: FAILED\n"))
}

func TestNewReportWriter(t *testing.T) {
	var buf bytes.Buffer

	for format, want := range map[string]any{
		"":     &TextWriter{},
		"text": &TextWriter{},
		"JSON": &JSONWriter{},
		"csv":  &CSVWriter{},
	} {
		w, err := NewReportWriter(format, &buf)
		require.NoError(t, err, format)
		assert.IsType(t, want, w, format)
	}

	_, err := NewReportWriter("xml", &buf)
	assert.Error(t, err)
}
