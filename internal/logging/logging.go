// Package logging provides the node-wide logger every package above it
// calls into. It wraps the standard library's log.Logger rather than
// adopting a structured-logging library: every cmd/*/main.go in the
// teacher calls log.Printf/log.Fatalf directly with no third-party
// logger anywhere in its tree, and that idiom is carried forward here
// rather than replaced with zap/zerolog/logrus (present elsewhere in the
// wider corpus, but never reached for by this teacher).
package logging

import (
	"log"
	"os"
)

// Logger is a minimal, prefix-tagged logger. Each actor-like component
// gets its own Logger via New so log lines are attributable to the
// address that produced them, the same role the teacher's ad hoc
// log.Printf("[component] ...") call sites play.
type Logger struct {
	*log.Logger
}

// New builds a Logger that prefixes every line with name, writing to
// stderr with stdlib log's default date/time flags.
func New(name string) *Logger {
	return &Logger{Logger: log.New(os.Stderr, "["+name+"] ", log.LstdFlags)}
}

// Fatalf logs and exits the process, matching the teacher's
// log.Fatalf use for unrecoverable startup errors in cmd/*/main.go.
func (l *Logger) Fatalf(format string, args ...any) {
	l.Logger.Fatalf(format, args...)
}
