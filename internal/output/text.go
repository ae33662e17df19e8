package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daryltucker/todo-prober/internal/model"
)

// ReportWriter renders a finished report.
type ReportWriter interface {
	Write(r *model.Report) error
}

// Supported --format values.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// NewReportWriter returns the writer for a --format value.
func NewReportWriter(format string, w io.Writer) (ReportWriter, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return NewTextWriter(w), nil
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatCSV:
		return NewCSVWriter(w), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text, json or csv)", format)
	}
}

// TextWriter prints a human readable summary.
type TextWriter struct {
	out   io.Writer
	title cases.Caser
	mu    sync.Mutex
}

// NewTextWriter creates a new TextWriter.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{out: w, title: cases.Title(language.English)}
}

func (tw *TextWriter) Write(r *model.Report) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	var b strings.Builder

	fmt.Fprintf(&b, "Target: %s\n", r.BaseURL)
	fmt.Fprintf(&b, "Register: %d  Login: %d\n", r.RegisterStatus, r.LoginStatus)

	if len(r.Steps) > 0 {
		b.WriteString("\nCRUD scenario\n")
		for _, s := range r.Steps {
			fmt.Fprintf(&b, "  [%s] %-20s %-6s %3d  %s\n",
				strings.ToUpper(string(s.Result)), tw.title.String(s.Name), s.Method, s.Actual, s.Detail)
		}
	}

	if r.Probe != nil {
		fmt.Fprintf(&b, "\nRate limit (%d requests / %ds, %d passes)\n",
			r.Probe.Window.Limit, r.Probe.Window.WindowSeconds, r.Probe.Window.Passes)
		for _, p := range r.Probe.Passes {
			if !p.Throttled() {
				fmt.Fprintf(&b, "  Pass %d: %d requests, never throttled\n", p.Pass+1, p.Requests)
				continue
			}
			fmt.Fprintf(&b, "  Pass %d: throttled at request %d (status %d), cooled %.1fs, recovered=%s\n",
				p.Pass+1, p.ThrottledAt, p.ThrottleStatus, p.Cooldown.Seconds(), formatRecovered(p.Recovered))
		}
	}

	if len(r.Timings) > 0 {
		b.WriteString("\nTimings\n")
		for _, t := range r.Timings {
			fmt.Fprintf(&b, "  %-12s %.3fs\n", tw.title.String(t.Name), t.Elapsed.Seconds())
		}
	}

	if r.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", r.Error)
	}

	verdict := "PASSED"
	if !r.Passed() {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "\nResult: %s\n", verdict)

	_, err := io.WriteString(tw.out, b.String())
	return err
}
