// Package serial provides the thin byte-stream abstraction the recovery
// channel and boot diagnostics are built on, so that both a real UART and
// the host-side test doubles in flash/flashtest satisfy the same
// interface.
package serial

import (
	"io"
	"time"
)

// Port is what C5 (recovery) and C6 (diagnostics) need from a serial link:
// byte reads with a deadline, and plain writes for human-readable output.
// A real board backs this with `machine.UART`; console.go's use of
// `machine.Serial` in the teacher is the same shape.
type Port interface {
	io.Reader
	io.Writer
	// SetReadDeadline arms a deadline for the next Read call. A zero
	// time.Time disarms it (the read blocks indefinitely).
	SetReadDeadline(t time.Time) error
}

// Writeln writes s followed by a newline, ignoring a nil port so
// diagnostics are a no-op when the serial feature is disabled.
func Writeln(p Port, s string) {
	if p == nil {
		return
	}
	_, _ = p.Write([]byte(s + "\n"))
}
