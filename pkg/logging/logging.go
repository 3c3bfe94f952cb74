// Package logging builds the slog.Logger every component takes as a
// constructor argument. Grounded on the source project's tint-backed
// handler; generalized into a constructor, since a node hosts several
// independently testable components (rpc, peer, meshnode) that each
// want their own logger rather than reaching for a process-global one.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the default node logger: colorized, timestamped,
// source-annotated output to stderr at level.
func New(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	}))
}

// Discard is a logger that drops everything, for tests that need a
// *slog.Logger but don't want fixture output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
