//go:build !tinygo

// Host build replaces the unsafe jump and hardware reset with hooks tests
// can observe, mirroring the teacher's bindicator_stub.go convention of a
// !tinygo file standing in for hardware-only code.
package bootloader

import (
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
)

// defaultJump records which image it was asked to boot instead of
// actually jumping, so Run() returns observably in tests.
func defaultJump(img image.Image[flash.MCUAddress]) {
	lastJump = &img
}

// defaultReboot records that a reboot was requested instead of resetting
// hardware that doesn't exist on the host.
func defaultReboot() {
	rebootCount++
}

// lastJump and rebootCount are test hooks; production code never reads
// them directly (WithJump/WithReboot let a caller substitute its own
// assertions instead).
var (
	lastJump    *image.Image[flash.MCUAddress]
	rebootCount int
)
