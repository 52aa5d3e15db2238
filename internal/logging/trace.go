package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Trace is the per-run diagnostics file. Every line passed to it is written
// verbatim after a timestamp. There is no level filtering or rotation.
type Trace struct {
	file   *os.File
	logger zerolog.Logger
}

// OpenTrace truncates (or creates) the trace file at path.
func OpenTrace(path string) (*Trace, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", path, err)
	}
	return &Trace{file: f, logger: newTraceLogger(f)}, nil
}

// DiscardTrace returns a trace that writes nowhere.
func DiscardTrace() *Trace {
	return &Trace{logger: newTraceLogger(io.Discard)}
}

func newTraceLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// Line appends one formatted line.
func (t *Trace) Line(format string, args ...any) {
	if t == nil {
		return
	}
	t.logger.Log().Msg(fmt.Sprintf(format, args...))
}

// Path returns the file backing the trace, or "" for a discarding trace.
func (t *Trace) Path() string {
	if t == nil || t.file == nil {
		return ""
	}
	return t.file.Name()
}

func (t *Trace) Close() error {
	if t == nil || t.file == nil {
		return nil
	}
	return t.file.Close()
}
