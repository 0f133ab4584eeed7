// Package flashtest provides in-memory flash.ReadWrite test doubles, the
// Go analogue of the original firmware's hardware-abstraction-layer doubles
// used to exercise the bootloader's decision logic without real silicon.
package flashtest

import (
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/loaderr"
)

// EraseByte is what a real NOR chip reads back as after a bulk erase.
const EraseByte = 0xFF

// Fake is an in-memory flash.ReadWrite[flash.MCUAddress] (or any Address
// type, via NewFake's type parameter). Reads and writes are bounds-checked
// against the configured range; Write enforces erase-before-write the way
// most real NOR flash does, unless AllowDirectWrite is set.
type Fake[A flash.Address[A]] struct {
	label string
	start A
	mem   []byte

	// AllowDirectWrite disables the erased-bits-only write check, modeling
	// a "smart write" driver (see mcuflash) instead of a raw NOR part.
	AllowDirectWrite bool

	// FailNextWrite/FailNextRead/FailNextErase let a test inject a single
	// peripheral failure on the next matching call, then self-clear.
	FailNextWrite bool
	FailNextRead  bool
	FailNextErase bool

	writeCount int
	eraseCount int
}

// NewFake allocates a fake flash of size bytes starting at start, with the
// given label for diagnostics.
func NewFake[A flash.Address[A]](label string, start A, size uint32) *Fake[A] {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = EraseByte
	}
	return &Fake[A]{label: label, start: start, mem: mem}
}

func (f *Fake[A]) Label() string { return f.label }

func (f *Fake[A]) Range() (A, A) {
	var end A = f.start.Add(uint32(len(f.mem)))
	return f.start, end
}

func (f *Fake[A]) offset(addr A, length uint32) (int, error) {
	start, end := f.Range()
	if !flash.InRange(addr, length, start, end) {
		return 0, flash.ErrMemoryNotReachable()
	}
	return int(addr.Diff(start)), nil
}

func (f *Fake[A]) Read(addr A, buf []byte) error {
	if f.FailNextRead {
		f.FailNextRead = false
		return flash.ErrPeripheralError(nil)
	}
	off, err := f.offset(addr, uint32(len(buf)))
	if err != nil {
		return err
	}
	copy(buf, f.mem[off:off+len(buf)])
	return nil
}

func (f *Fake[A]) Write(addr A, buf []byte) error {
	if f.FailNextWrite {
		f.FailNextWrite = false
		return flash.ErrPeripheralError(nil)
	}
	off, err := f.offset(addr, uint32(len(buf)))
	if err != nil {
		return err
	}
	if !f.AllowDirectWrite {
		for i, b := range buf {
			if f.mem[off+i]&b != b {
				return loaderr.New(loaderr.DriverError, "write would set a bit without an erase")
			}
		}
	}
	copy(f.mem[off:off+len(buf)], buf)
	f.writeCount++
	return nil
}

func (f *Fake[A]) Erase() error {
	if f.FailNextErase {
		f.FailNextErase = false
		return flash.ErrPeripheralError(nil)
	}
	for i := range f.mem {
		f.mem[i] = EraseByte
	}
	f.eraseCount++
	return nil
}

// WriteCount and EraseCount let tests assert on driver call counts, e.g. to
// verify the copy engine batches writes rather than writing byte-by-byte.
func (f *Fake[A]) WriteCount() int { return f.writeCount }
func (f *Fake[A]) EraseCount() int { return f.eraseCount }

// Seed directly installs bytes at addr, bypassing the erased-bits check.
// Used by tests to set up a pre-existing image without going through Write.
func (f *Fake[A]) Seed(addr A, data []byte) {
	start, _ := f.Range()
	off := int(addr.Diff(start))
	copy(f.mem[off:off+len(data)], data)
}

// Snapshot returns a copy of the full backing memory, for assertions.
func (f *Fake[A]) Snapshot() []byte {
	out := make([]byte, len(f.mem))
	copy(out, f.mem)
	return out
}
