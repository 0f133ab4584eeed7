// Package updatesignal reads the out-of-band hint that selects which
// update policy the boot orchestrator applies this boot (spec component
// C4). The signal is read exactly once per boot.
package updatesignal

// Plan is the orchestrator's instruction for this boot.
type Plan uint8

const (
	// None means: verify the boot bank as-is, no update search.
	None Plan = iota
	// Any means: search every other bank for a newer image.
	Any
	// Index restricts the search to a single named bank.
	Index
	// Serial means: accept exactly one image over the recovery channel
	// into the boot bank, bypassing the bank search entirely.
	Serial
)

func (p Plan) String() string {
	switch p {
	case None:
		return "None"
	case Any:
		return "Any"
	case Index:
		return "Index"
	case Serial:
		return "Serial"
	default:
		return "Unknown"
	}
}

// UpdatePlan carries the resolved Plan plus its Index payload when
// applicable (the Go analogue of the original's `UpdatePlan::Index(u8)`
// enum variant).
type UpdatePlan struct {
	Kind      Plan
	BankIndex uint8
}

// Reader reads the update signal. The orchestrator calls Read exactly once
// per boot, so an implementation may consume the signal as it reads it
// (Register does).
type Reader interface {
	Read() (UpdatePlan, error)
}

// Null always reports None; used when the update_signal feature is
// disabled at build time (spec.md §6 feature flags).
type Null struct{}

func (Null) Read() (UpdatePlan, error) { return UpdatePlan{Kind: None}, nil }

// RegisterIO is the minimal persistent-register access the Register
// implementation needs. A real board backs this with a battery-backed or
// non-volatile backup register; original_source's
// ports/stm32f412/update_signal.rs and ports/wgm160p/update_signal.rs are
// concrete examples of the same register-backed scheme.
type RegisterIO interface {
	ReadRegister() uint32
	WriteRegister(uint32)
}

// Sentinel register values, matching the scheme named in spec.md §4.4.
const (
	registerNone   = 0x00000000
	registerAny    = 0xFFFFFFFF
	registerSerial = 0xFFFFFFFE
)

// Register reads the update signal from a single persistent 32-bit
// register: 0 means None, 0xFFFFFFFF means Any, 0xFFFFFFFE means Serial,
// and any other value n is interpreted as Index(n), truncated to a byte.
type Register struct {
	IO RegisterIO
}

// Read implements Reader. It clears the register back to None immediately
// after reading, so a stale signal never survives past the boot it was
// meant for.
func (r Register) Read() (UpdatePlan, error) {
	v := r.IO.ReadRegister()
	r.IO.WriteRegister(registerNone)
	switch v {
	case registerNone:
		return UpdatePlan{Kind: None}, nil
	case registerAny:
		return UpdatePlan{Kind: Any}, nil
	case registerSerial:
		return UpdatePlan{Kind: Serial}, nil
	default:
		return UpdatePlan{Kind: Index, BankIndex: uint8(v)}, nil
	}
}
