/*
PURPOSE:
  Writes probe reports as JSON Lines (NDJSON).
  Optimized for machine parsing of CI runs.

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - One report per line keeps repeated runs appendable by the caller's shell.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Consumes: internal/model.Report

ERROR HANDLING:
  - Returns error on write failure.

IMPLEMENTATION RULES:
  - Use goccy/go-json NewEncoder, same codec as the engine.
  - Thread-safe.

USAGE:
  w := output.NewJSONWriter(os.Stdout)
  w.Write(report)

SELF-HEALING INSTRUCTIONS:
  - None specific.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update if we switch to an indented document.
*/

package output

import (
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/daryltucker/todo-prober/internal/model"
)

// JSONWriter handles writing reports as JSON lines.
type JSONWriter struct {
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{encoder: json.NewEncoder(w)}
}

// Write writes a single report as a JSON line.
func (jw *JSONWriter) Write(r *model.Report) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(r)
}
