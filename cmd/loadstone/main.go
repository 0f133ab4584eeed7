//go:build tinygo

// Command loadstone is the flashed bootloader binary: it wires the
// concrete drivers (internal flash, external SPI flash, UART serial, a
// RAM-backed update-signal register) to the bootloader package's
// orchestrator and runs it. Grounded on the teacher's main.go, which wires
// machine.Serial and a slog handler the same way for its own (now-removed)
// bindicator firmware.
package main

import (
	"errors"
	"log/slog"
	"machine"
	"time"
	"unsafe"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"openenterprise/loadstone/bootloader"
	"openenterprise/loadstone/flash/mcuflash"
	"openenterprise/loadstone/flash/spiflash"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/updatesignal"
)

// externalSPIBus and externalSPICS name the board's external flash
// connection; a real deployment substitutes its own board's bus/pin names
// here (spec.md §9's per-board build step).
const (
	externalSPIBus = "SPI0.0"
	externalSPICS  = "GPIO17"
)

// updateSignalAddr is a RAM word reserved for the update-signal register,
// placed just past the BootMetrics region (bootmetrics.ram_tinygo.go uses
// the same unsafe.Pointer-over-a-fixed-address technique for its record).
const updateSignalAddr = uintptr(0x20000000 + 64)

// ramRegister is an updatesignal.RegisterIO backed by a single RAM word,
// so an application image can arm a recovery or update-search boot by
// writing a sentinel there before resetting, the scheme
// original_source's ports/stm32f412/update_signal.rs documents for a
// register-backed MCU.
type ramRegister struct{}

func (ramRegister) ReadRegister() uint32 {
	return *(*uint32)(unsafe.Pointer(updateSignalAddr))
}

func (ramRegister) WriteRegister(v uint32) {
	*(*uint32)(unsafe.Pointer(updateSignalAddr)) = v
}

var errDeadlineExceeded = errors.New("uartPort: read deadline exceeded")

// uartPort adapts machine.UART to serial.Port, providing the read deadline
// recovery.Receive needs by polling machine.UART.Buffered rather than
// relying on a native deadline the TinyGo UART driver doesn't expose.
type uartPort struct {
	uart     *machine.UART
	deadline time.Time
}

func (p *uartPort) Read(buf []byte) (int, error) {
	for {
		if n := p.uart.Buffered(); n > 0 {
			if n > len(buf) {
				n = len(buf)
			}
			return p.uart.Read(buf[:n])
		}
		if !p.deadline.IsZero() && time.Now().After(p.deadline) {
			return 0, errDeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *uartPort) Write(buf []byte) (int, error) {
	return p.uart.Write(buf)
}

func (p *uartPort) SetReadDeadline(t time.Time) error {
	p.deadline = t
	return nil
}

// millis is the Clock the orchestrator uses for Step F's boot-time
// metric, measured against process start.
type millis struct{ start time.Time }

func (m millis) Millis() uint32 {
	return uint32(time.Since(m.start).Milliseconds())
}

func main() {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if _, err := host.Init(); err != nil {
		logger.Error("spi:host-init-failed", "error", err)
	}

	var mcuSize uint32
	for _, bank := range demoBankTable.MCU {
		mcuSize += bank.Size
	}
	mcu := mcuflash.Flash{Origin: 0, Size: mcuSize}

	opts := []bootloader.Option{
		bootloader.WithSerial(&uartPort{uart: machine.Serial}),
		bootloader.WithUpdateSignal(updatesignal.Register{IO: ramRegister{}}),
		bootloader.WithClock(millis{start: time.Now()}),
		bootloader.WithLogger(logger),
	}

	if bus, err := spireg.Open(externalSPIBus); err != nil {
		logger.Error("spi:bus-open-failed", "error", err)
	} else if conn, err := bus.Connect(physic.MegaHertz*8, spi.Mode0, 8); err != nil {
		logger.Error("spi:connect-failed", "error", err)
	} else if cs := gpioreg.ByName(externalSPICS); cs == nil {
		logger.Error("spi:cs-pin-not-found", "pin", externalSPICS)
	} else {
		lastBank := demoBankTable.External[len(demoBankTable.External)-1]
		size := lastBank.Location.Int() + lastBank.Size
		opts = append(opts, bootloader.WithExternalFlash(&spiflash.Flash{
			Conn:        conn,
			CS:          cs,
			Origin:      0,
			Size:        size,
			BusyTimeout: time.Second,
		}))
	}

	loader := bootloader.New(
		mcu,
		demoBankTable,
		demoFeatures,
		demoMemoryMap,
		bootloader.NewCRCReaders(),
		image.CRCTrailerSize,
		opts...,
	)

	if err := loader.Run(); err != nil {
		logger.Error("boot:fatal", "error", err)
		for {
			time.Sleep(time.Second)
		}
	}
}
