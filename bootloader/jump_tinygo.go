//go:build tinygo

package bootloader

import (
	"unsafe"

	"device/arm"

	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
)

// defaultJump performs the unsafe transfer of control described in
// spec.md §4.6 Step F: load the image's vector table base into SCB.VTOR,
// load its initial stack pointer into MSP, then branch to the reset
// handler at image.location()+4 — the Go/TinyGo equivalent of the
// original's `cortex_m::register::msp::write` plus a transmuted function
// pointer call. Order of effects matches the original exactly: by the
// time this function is called, BootMetrics has already been written.
func defaultJump(img image.Image[flash.MCUAddress]) {
	base := uintptr(img.Location.Int())
	initialSP := *(*uint32)(unsafe.Pointer(base))
	resetHandler := *(*uint32)(unsafe.Pointer(base + 4))

	arm.SCB.VTOR.Set(uint32(base))
	arm.SetSP(initialSP)

	type resetFunc func()
	fn := *(*resetFunc)(unsafe.Pointer(&resetHandler))
	fn()
}

// defaultReboot triggers a hardware system reset, the same final step the
// original's `recover()` takes via `SCB::sys_reset()`.
func defaultReboot() {
	arm.SystemReset()
}
