// Package astlog wraps the standard log package with a per-component
// "[component id]" prefix and a small set of error-kind-aware helpers
// (Malformed, Transient, Recoverable, Fatal) matching this system's error
// handling policy: TS-level malformation is counted and dropped, transient
// I/O is retried, recoverable failures rebuild a component's state machine,
// and Fatal errors abort the process after a structured log line.
package astlog

import (
	"fmt"
	"log"
	"os"
)

// Logger prefixes every line with "[component id]", mirroring the
// teacher's direct log.Printf calls with an inline bracketed prefix
// (e.g. "supervisor[%s]:", "[%s %s]").
type Logger struct {
	prefix string
}

// New returns a Logger that prefixes every line with "[component id]".
// id may be empty, in which case only the component name is bracketed.
func New(component, id string) *Logger {
	if id == "" {
		return &Logger{prefix: fmt.Sprintf("[%s]", component)}
	}
	return &Logger{prefix: fmt.Sprintf("[%s %s]", component, id)}
}

// Printf logs a plain message at this logger's prefix.
func (l *Logger) Printf(format string, args ...any) {
	log.Printf("%s "+format, append([]any{l.prefix}, args...)...)
}

// Malformed logs a dropped, locally-handled wire validation failure
// (a malformed PSI section, PES packet, TPDU, or APDU). kind names what
// failed validation (e.g. "section", "pes", "tpdu", "apdu").
func (l *Logger) Malformed(kind string, err error) {
	log.Printf("%s malformed %s: %v", l.prefix, kind, err)
}

// Transient logs a retried I/O error (EAGAIN/EINTR and similar), where
// the caller is about to retry the same operation.
func (l *Logger) Transient(op string, err error) {
	log.Printf("%s transient io error during %s: %v (retrying)", l.prefix, op, err)
}

// Recoverable logs a failure that causes a component to tear down and
// restart its state machine with backoff (device lost, CAM reset, key
// server down). kind names the recovery trigger.
func (l *Logger) Recoverable(kind string, err error) {
	log.Printf("%s recoverable error (%s): %v — rebuilding state", l.prefix, kind, err)
}

// Fatal logs a structured line naming kind (configuration, ioctl_misuse,
// invariant) and the error, then aborts the process with a non-zero exit
// code. Never attempts recovery — callers should use this only for
// conditions the error handling design classifies as Fatal.
func (l *Logger) Fatal(kind string, err error) {
	log.Printf("%s fatal error (%s): %v — aborting", l.prefix, kind, err)
	os.Exit(1)
}
