// Package flash defines the abstraction over heterogeneous flash chips
// that the rest of Loadstone is built on (spec component C1). Each chip
// family gets its own concrete address type, so that an address belonging
// to the MCU's internal flash can never be accidentally handed to the
// external flash's Flash implementation: the compiler rejects the mix.
package flash

import "openenterprise/loadstone/loaderr"

// Address is the generic constraint satisfied by every chip-specific
// address type. It reproduces the original's "address + usize, address -
// usize, address - address -> usize" operations as methods instead of
// operator overloads, since Go has none.
type Address[Self any] interface {
	comparable
	// Add returns the address n bytes further into the chip's address space.
	Add(n uint32) Self
	// Sub returns the address n bytes before this one.
	Sub(n uint32) Self
	// Diff returns the byte distance from other to this address (this - other).
	Diff(other Self) uint32
	// Int returns the address as a plain integer, e.g. for diagnostics.
	Int() uint32
}

// ReadWrite is the per-chip flash driver contract (spec §4.1). Implementers
// may require write to be preceded by an erase of the containing sector(s),
// or may implement "smart write" (read-modify-erase-rewrite only when a bit
// would need to flip 0->1).
type ReadWrite[A Address[A]] interface {
	// Read fills buf with len(buf) bytes starting at addr.
	Read(addr A, buf []byte) error
	// Write persists buf starting at addr.
	Write(addr A, buf []byte) error
	// Erase bulk-erases the entire writable region.
	Erase() error
	// Range returns the inclusive-start/exclusive-end writable address interval.
	Range() (start, end A)
	// Label returns a short identifier for diagnostic messages.
	Label() string
}

// MCUAddress is the address type for the microcontroller's internal flash.
type MCUAddress uint32

func (a MCUAddress) Add(n uint32) MCUAddress       { return a + MCUAddress(n) }
func (a MCUAddress) Sub(n uint32) MCUAddress       { return a - MCUAddress(n) }
func (a MCUAddress) Diff(other MCUAddress) uint32  { return uint32(a - other) }
func (a MCUAddress) Int() uint32                   { return uint32(a) }

// ExternalAddress is the address type for an external (e.g. SPI/QSPI NOR)
// flash chip. Kept distinct from MCUAddress so the two chips' addresses
// cannot be mixed up at a call site.
type ExternalAddress uint32

func (a ExternalAddress) Add(n uint32) ExternalAddress      { return a + ExternalAddress(n) }
func (a ExternalAddress) Sub(n uint32) ExternalAddress      { return a - ExternalAddress(n) }
func (a ExternalAddress) Diff(other ExternalAddress) uint32 { return uint32(a - other) }
func (a ExternalAddress) Int() uint32                       { return uint32(a) }

// InRange reports whether [addr, addr+length) lies wholly within [start, end).
func InRange[A Address[A]](addr A, length uint32, start, end A) bool {
	if addr.Int() < start.Int() {
		return false
	}
	return addr.Add(length).Int() <= end.Int()
}

// ErrMemoryNotReachable builds the standard "address outside writable
// range" error for a driver implementation.
func ErrMemoryNotReachable() error {
	return loaderr.New(loaderr.DriverError, loaderr.ReasonMemoryNotReachable)
}

// ErrMisalignedAccess builds the standard "address/length violates chip
// granularity" error for a driver implementation.
func ErrMisalignedAccess() error {
	return loaderr.New(loaderr.DriverError, loaderr.ReasonMisalignedAccess)
}

// ErrTimeout builds the standard "flash busy beyond deadline" error for a
// driver implementation.
func ErrTimeout() error {
	return loaderr.New(loaderr.DriverError, loaderr.ReasonTimeout)
}

// ErrPeripheralError builds the standard "underlying bus failure" error for
// a driver implementation.
func ErrPeripheralError(cause error) error {
	return &loaderr.Error{Kind: loaderr.DriverError, Msg: loaderr.ReasonPeripheralError, Err: cause}
}
