package flashtest

import (
	"bytes"
	"io"
	"time"
)

// FakeSerial is an in-memory serial.Port double: writes accumulate in
// Output, reads are served from a pre-loaded Input buffer. A configured
// ReadDeadline in the past makes the next Read return io.ErrNoProgress,
// simulating a timed-out recovery block.
type FakeSerial struct {
	Input  bytes.Buffer
	Output bytes.Buffer

	deadline time.Time
}

func NewFakeSerial(input []byte) *FakeSerial {
	s := &FakeSerial{}
	s.Input.Write(input)
	return s
}

func (s *FakeSerial) Read(p []byte) (int, error) {
	if !s.deadline.IsZero() && !s.deadline.After(nowFunc()) {
		return 0, io.ErrNoProgress
	}
	if s.Input.Len() == 0 {
		return 0, io.EOF
	}
	return s.Input.Read(p)
}

func (s *FakeSerial) Write(p []byte) (int, error) {
	return s.Output.Write(p)
}

func (s *FakeSerial) SetReadDeadline(t time.Time) error {
	s.deadline = t
	return nil
}

// nowFunc is overridable by tests wanting deterministic timeout behavior
// without a real clock.
var nowFunc = time.Now
