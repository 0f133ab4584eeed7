//go:build tinygo

package main

import (
	"openenterprise/loadstone/bankcfg"
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
)

// demoBankTable is a hand-written example layout for a board with one
// 128KB bootable bank of internal flash and an external SPI NOR flash
// holding a 1MB update bank and a 1MB golden recovery bank. A real
// deployment generates this table at build time (spec.md §9); this demo
// table gives cmd/loadstone a concrete instance to build against.
var demoBankTable = bankcfg.BankTable{
	MCU: []image.Bank[flash.MCUAddress]{
		{Index: 1, Location: 0x00000000, Size: 128 * 1024, Bootable: true},
	},
	External: []image.Bank[flash.ExternalAddress]{
		{Index: 2, Location: 0x00000000, Size: 1024 * 1024},
		{Index: 3, Location: 0x00100000, Size: 1024 * 1024, Golden: true},
	},
}

var demoFeatures = bankcfg.Features{
	Serial:          true,
	SerialRecovery:  true,
	BootTimeMetrics: true,
	ECDSAVerify:     false,
	UpdateSignal:    true,
	GoldenBank:      true,
}

var demoMemoryMap = bankcfg.MemoryMap{
	FlashOrigin:     0x10000000,
	FlashSize:       2 * 1024 * 1024,
	RAMOrigin:       0x20000000,
	RAMSize:         256 * 1024,
	BootMetricsAddr: 0x20000000,
}
