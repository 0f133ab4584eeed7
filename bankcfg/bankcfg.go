// Package bankcfg holds the link-time configuration the core bootloader
// consumes as an external input: the bank table, feature flags, and
// memory map (spec.md §6). In a real deployment these values are produced
// by a build-time code-generation pipeline that is explicitly out of
// scope (spec.md §9); this package only defines their shape and one
// concrete hand-written example table for the demo board, in
// cmd/loadstone/boardconfig_demo.go.
package bankcfg

import (
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
)

// BankTable is the two static arrays named in spec.md §6: MCU-flash banks
// and external-flash banks.
type BankTable struct {
	MCU      []image.Bank[flash.MCUAddress]
	External []image.Bank[flash.ExternalAddress]
}

// Features mirrors the feature-flag set of spec.md §6, deciding which
// optional subsystems the orchestrator wires up.
type Features struct {
	Serial          bool
	SerialRecovery  bool
	BootTimeMetrics bool
	ECDSAVerify     bool
	UpdateSignal    bool
	GoldenBank      bool
}

// MemoryMap carries the board's absolute addresses outside the bank table
// itself: the flash and RAM origin/size, and where BootMetrics is written.
// The orchestrator reads only BootMetricsAddr.
type MemoryMap struct {
	FlashOrigin uintptr
	FlashSize   uintptr
	RAMOrigin   uintptr
	RAMSize     uintptr
	// BootMetricsAddr is the fixed absolute RAM address Step F writes to.
	BootMetricsAddr uintptr
}
