// Package applog wires the defense-scheduling kernel's structured logging,
// built on github.com/joeycumines/logiface with the stumpy JSON backend —
// the same pairing logiface-stumpy's own example_test.go demonstrates
// (stumpy.L.New(stumpy.L.WithStumpy(...), ...)). The logger is a
// *logiface.Logger[*stumpy.Event] passed in explicitly (cmd/defsched hands
// it to internal/workflow through workflow.Config.Logger); this package
// never holds a package-level logger, matching logiface's own "no implicit
// global" posture (see logiface/global.go, an opt-in the teacher itself
// only reaches for in examples, never inside library code).
package applog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete type threaded through internal/workflow and
// cmd/defsched.
type Logger = logiface.Logger[*stumpy.Event]

// Config configures New, matching the teacher's "defaults if zero"
// convention (microbatch.BatcherConfig).
type Config struct {
	// Writer receives the JSON log lines; defaults to os.Stderr.
	Writer io.Writer
	// Level sets the minimum enabled level; defaults to
	// logiface.LevelInformational.
	Level logiface.Level
	// Verbose raises Level to logiface.LevelDebug, overriding Level if set.
	Verbose bool
}

// New builds a Logger per cfg. A nil cfg is equivalent to &Config{}.
func New(cfg *Config) *Logger {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Writer == nil {
		c.Writer = os.Stderr
	}
	level := c.Level
	if level == 0 {
		level = logiface.LevelInformational
	}
	if c.Verbose {
		level = logiface.LevelDebug
	}

	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
			_, err := c.Writer.Write(append(append([]byte(nil), e.Bytes()...), '\n'))
			return err
		})),
		stumpy.L.WithLevel(level),
	)
}

// Session returns a child Logger with a session field baked permanently
// into every event it builds, used by cmd/defsched to correlate one
// interactive run's log lines (see internal/workflow.SessionID). A Logger,
// not a Context, is returned deliberately: a Context's field-builder
// methods (Str, Int, ...) mutate and return the same receiver, so holding
// one across many unrelated log calls would accumulate fields across calls
// instead of scoping them to one event. Callers needing per-call fields
// should call Clone() on the result for each event.
func Session(l *Logger, sessionID string) *Logger {
	return l.Clone().Str("session", sessionID).Logger()
}
