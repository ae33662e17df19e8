/*
PURPOSE:
  Writes a probe report as CSV rows.
  One row per scenario step, rate-limit pass and timed phase.

REQUIREMENTS:
  User-specified:
  - Outcomes are aggregated into a report instead of scattered prints.

  Implementation-discovered:
  - Results are not persisted; the writer targets any io.Writer (stdout in the CLI).
  - A single header with a `kind` column keeps the three row types in one table.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Consumes: internal/model.Report

ERROR HANDLING:
  - Returns error on write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every report.

USAGE:
  w := output.NewCSVWriter(os.Stdout)
  w.Write(report)

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update row mapping when Report changes.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/daryltucker/todo-prober/internal/model"
)

var csvHeader = []string{
	"kind", "name", "method", "path", "expected_status", "actual_status",
	"result", "detail", "duration_s",
}

// CSVWriter handles writing reports as CSV.
type CSVWriter struct {
	writer      *csv.Writer
	mu          sync.Mutex
	wroteHeader bool
}

// NewCSVWriter creates a new CSVWriter.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

// Write writes all rows of a report.
// It is thread-safe.
func (cw *CSVWriter) Write(r *model.Report) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.wroteHeader {
		if err := cw.writer.Write(csvHeader); err != nil {
			return err
		}
		cw.wroteHeader = true
	}

	for _, s := range r.Steps {
		record := []string{
			"step",
			s.Name,
			s.Method,
			s.Path,
			joinInts(s.Expected),
			strconv.Itoa(s.Actual),
			string(s.Result),
			s.Detail,
			fmt.Sprintf("%.4f", s.Duration.Seconds()),
		}
		if err := cw.writer.Write(record); err != nil {
			return err
		}
	}

	if r.Probe != nil {
		for _, p := range r.Probe.Passes {
			result := "clear"
			if p.Throttled() {
				result = "throttled"
			}
			detail := fmt.Sprintf("requests=%d throttles=%d throttled_at=%d cooldown_s=%.1f recovered=%s",
				p.Requests, p.Throttles, p.ThrottledAt, p.Cooldown.Seconds(), formatRecovered(p.Recovered))
			record := []string{
				"pass",
				fmt.Sprintf("pass-%d", p.Pass+1),
				"GET",
				"",
				"",
				strconv.Itoa(p.ThrottleStatus),
				result,
				detail,
				"",
			}
			if err := cw.writer.Write(record); err != nil {
				return err
			}
		}
	}

	for _, t := range r.Timings {
		record := []string{"phase", t.Name, "", "", "", "", "", "", fmt.Sprintf("%.4f", t.Elapsed.Seconds())}
		if err := cw.writer.Write(record); err != nil {
			return err
		}
	}

	cw.writer.Flush()
	return cw.writer.Error()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "|")
}

func formatRecovered(v *bool) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatBool(*v)
}
