// Package bootloader implements the boot orchestrator, the state machine
// that ties the flash abstraction, image reader, copy engine,
// update-signal reader and recovery channel together, chooses an image,
// records metrics, and transfers control (spec component C6, spec.md
// §4.6).
package bootloader

import (
	"log/slog"

	"openenterprise/loadstone/bankcfg"
	"openenterprise/loadstone/bootmetrics"
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/loaderr"
	"openenterprise/loadstone/recovery"
	"openenterprise/loadstone/serial"
	"openenterprise/loadstone/updatesignal"
	"openenterprise/loadstone/version"
)

// Readers bundles the per-chip image.Reader instances. Both must use the
// same verification mode (CRC or ECDSA): spec.md §9 scopes each device to
// a single mode at build time.
type Readers struct {
	MCU      image.Reader[flash.MCUAddress]
	External image.Reader[flash.ExternalAddress]
}

// NewCRCReaders builds the Readers pair for a CRC32/IEEE-verified build.
func NewCRCReaders() Readers {
	return Readers{MCU: image.CRCReader[flash.MCUAddress]{}, External: image.CRCReader[flash.ExternalAddress]{}}
}

// NewECDSAReaders builds the Readers pair for a P-256-signature-verified
// build.
func NewECDSAReaders(pub image.PublicKey) Readers {
	return Readers{
		MCU:      image.ECDSAReader[flash.MCUAddress]{PublicKey: pub},
		External: image.ECDSAReader[flash.ExternalAddress]{PublicKey: pub},
	}
}

// Clock abstracts elapsed-time measurement so Step F's metrics can be
// tested without a real millisecond counter.
type Clock interface {
	Millis() uint32
}

// Bootloader is the single-owner orchestrator: it exclusively owns the MCU
// flash, serial port and update-signal reader; external flash is owned
// only when present (spec.md §3 "Ownership").
type Bootloader struct {
	mcu      flash.ReadWrite[flash.MCUAddress]
	external flash.ReadWrite[flash.ExternalAddress]
	banks    bankcfg.BankTable
	features bankcfg.Features
	memMap   bankcfg.MemoryMap
	readers  Readers
	trailer  uint32

	port   serial.Port
	signal updatesignal.Reader
	clock  Clock
	log    *slog.Logger

	jump   JumpFunc
	reboot RebootFunc
}

// JumpFunc performs the final, non-returning transfer of control to a
// verified image. The tinygo build provides the real implementation
// (jump_tinygo.go); tests substitute a hook that records the call.
type JumpFunc func(img image.Image[flash.MCUAddress])

// RebootFunc resets the MCU after recovery writes a new image. The tinygo
// build resets via hardware; tests substitute a hook.
type RebootFunc func()

// Option configures optional Bootloader subsystems.
type Option func(*Bootloader)

// WithExternalFlash attaches the external flash chip. Without this, the
// bank table must contain zero external banks (Step A invariant 4).
func WithExternalFlash(f flash.ReadWrite[flash.ExternalAddress]) Option {
	return func(b *Bootloader) { b.external = f }
}

// WithSerial attaches the serial port used for diagnostics and recovery.
func WithSerial(p serial.Port) Option {
	return func(b *Bootloader) { b.port = p }
}

// WithUpdateSignal attaches the update-signal reader. Defaults to
// updatesignal.Null (always None) when omitted.
func WithUpdateSignal(r updatesignal.Reader) Option {
	return func(b *Bootloader) { b.signal = r }
}

// WithClock attaches the boot-time-elapsed clock.
func WithClock(c Clock) Option {
	return func(b *Bootloader) { b.clock = c }
}

// WithLogger attaches the structured diagnostics logger. Defaults to
// slog.Default() when omitted.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bootloader) { b.log = l }
}

// WithJump overrides the boot jump, for host-side testing.
func WithJump(j JumpFunc) Option {
	return func(b *Bootloader) { b.jump = j }
}

// WithReboot overrides the post-recovery reboot, for host-side testing.
func WithReboot(r RebootFunc) Option {
	return func(b *Bootloader) { b.reboot = r }
}

// New constructs a Bootloader over the MCU flash and static configuration.
func New(mcu flash.ReadWrite[flash.MCUAddress], banks bankcfg.BankTable, features bankcfg.Features, memMap bankcfg.MemoryMap, readers Readers, trailerSize uint32, opts ...Option) *Bootloader {
	b := &Bootloader{
		mcu:      mcu,
		banks:    banks,
		features: features,
		memMap:   memMap,
		readers:  readers,
		trailer:  trailerSize,
		signal:   updatesignal.Null{},
		log:      slog.Default(),
		jump:     defaultJump,
		reboot:   defaultReboot,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// bootBank returns the single bootable MCU bank, assuming Step A already
// validated the table.
func (b *Bootloader) bootBank() image.Bank[flash.MCUAddress] {
	for _, bank := range b.banks.MCU {
		if bank.Bootable {
			return bank
		}
	}
	return image.Bank[flash.MCUAddress]{}
}

// Run executes Steps A through G. On success it does not return (Step F's
// jump is non-returning on a real target); on total failure with recovery
// disabled it returns a ConfigurationError/fatal error for the caller's
// halt-and-report loop. On the host build the default jump and reboot
// (jump_host.go) only record the call, so Run returns observably in tests.
func (b *Bootloader) Run() error {
	if err := b.validateBankTable(); err != nil {
		b.log.Error("boot:configuration-invalid", "error", err)
		return err
	}

	startMs := b.nowMs()
	b.greet()

	plan, err := b.signal.Read()
	if err != nil {
		b.log.Error("update:signal-read-failed", "error", err)
		plan = updatesignal.UpdatePlan{Kind: updatesignal.None}
	}
	b.log.Info("update:signal-resolved", "plan", plan.Kind.String(), "index", plan.BankIndex)

	switch plan.Kind {
	case updatesignal.Serial:
		if _, err := recovery.Receive[flash.MCUAddress](b.port, b.mcu, b.bootBank()); err != nil {
			b.log.Error("recovery:serial-signal-failed", "error", err)
			return b.enterRecovery(startMs)
		}
		return b.verifyAndBoot(startMs, bootmetrics.Direct, 0)
	case updatesignal.None:
		if _, err := b.readers.MCU.At(b.mcu, b.bootBank()); err == nil {
			return b.boot(startMs, bootmetrics.Direct, 0)
		}
		return b.restore(startMs)
	case updatesignal.Any:
		path, idx, ok := b.searchForUpdate(nil)
		if !ok {
			path, idx = bootmetrics.Direct, 0
		}
		return b.boot(startMs, path, idx)
	case updatesignal.Index:
		restrict := plan.BankIndex
		path, idx, ok := b.searchForUpdate(&restrict)
		if !ok {
			path, idx = bootmetrics.Direct, 0
		}
		return b.boot(startMs, path, idx)
	default:
		return b.restore(startMs)
	}
}

func (b *Bootloader) nowMs() uint32 {
	if b.clock == nil {
		return bootmetrics.ElapsedUnavailable
	}
	return b.clock.Millis()
}

func (b *Bootloader) greet() {
	serial.Writeln(b.port, "Loadstone "+version.String())
}

// validateBankTable enforces Step A's four invariants.
func (b *Bootloader) validateBankTable() error {
	bootableCount := 0
	goldenCount := 0
	var indices []uint8
	for _, bank := range b.banks.MCU {
		if bank.Bootable {
			bootableCount++
		}
		if bank.Golden {
			goldenCount++
		}
		indices = append(indices, bank.Index)
	}
	for _, bank := range b.banks.External {
		if bank.Golden {
			goldenCount++
		}
		indices = append(indices, bank.Index)
	}

	if bootableCount != 1 {
		return loaderr.New(loaderr.ConfigurationError, "exactly one MCU bank must be bootable")
	}
	if goldenCount > 1 {
		return loaderr.New(loaderr.ConfigurationError, "at most one bank may be golden")
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] != indices[i-1]+1 {
			return loaderr.New(loaderr.ConfigurationError, "bank indices must be contiguous, MCU then external")
		}
	}
	if b.external == nil && len(b.banks.External) != 0 {
		return loaderr.New(loaderr.ConfigurationError, "external banks configured without an external flash object")
	}
	return nil
}
