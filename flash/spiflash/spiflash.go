// Package spiflash implements flash.ReadWrite[flash.ExternalAddress] for an
// external SPI/QSPI NOR flash chip, the chip family spec.md §3 calls the
// "external flash" candidate store. Command set and CS-assertion pattern
// are adapted from a periph.io-based SPI NOR driver in the example pack,
// generalized to flash.ReadWrite and to a single configurable [Origin,
// Origin+Size) window rather than a whole-chip API.
package spiflash

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"openenterprise/loadstone/flash"
)

// JEDEC-standard SPI NOR command bytes.
const (
	cmdRead        = 0x03
	cmdWriteEnable = 0x06
	cmdPageProgram = 0x02
	cmdErase4KB    = 0x20
	cmdEraseChip   = 0xC7
	cmdReadStatus  = 0x05
)

const (
	statusBusyBit = 1 << 0
	pageSize      = 256
	sectorSize    = 4096
)

// Flash is a flash.ReadWrite[flash.ExternalAddress] talking to a SPI NOR
// chip over a periph.io spi.Conn, covering [Origin, Origin+Size) of the
// chip's 24-bit address space.
type Flash struct {
	Conn   spi.Conn
	CS     gpio.PinIO
	Origin flash.ExternalAddress
	Size   uint32

	// BusyTimeout bounds how long Write/Erase will poll the status
	// register before giving up; spec.md's ErrTimeout covers this case.
	BusyTimeout time.Duration
}

func (f *Flash) Label() string { return "external-spi" }

func (f *Flash) Range() (flash.ExternalAddress, flash.ExternalAddress) {
	return f.Origin, f.Origin.Add(f.Size)
}

func (f *Flash) tx(buf []byte) error {
	if err := f.CS.Out(gpio.Low); err != nil {
		return flash.ErrPeripheralError(err)
	}
	defer f.CS.Out(gpio.High)
	if err := f.Conn.Tx(buf, buf); err != nil {
		return flash.ErrPeripheralError(err)
	}
	return nil
}

func (f *Flash) writeEnable() error {
	return f.tx([]byte{cmdWriteEnable})
}

func (f *Flash) busyWait() error {
	deadline := time.Now().Add(f.busyTimeout())
	for {
		buf := []byte{cmdReadStatus, 0}
		if err := f.tx(buf); err != nil {
			return err
		}
		if buf[1]&statusBusyBit == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return flash.ErrTimeout()
		}
		time.Sleep(time.Microsecond * 50)
	}
}

func (f *Flash) busyTimeout() time.Duration {
	if f.BusyTimeout == 0 {
		return time.Second
	}
	return f.BusyTimeout
}

// Read reads len(buf) bytes starting at addr in a single SPI transaction,
// whatever the length of buf; it does not split long reads to fit a
// controller's maximum transaction size.
func (f *Flash) Read(addr flash.ExternalAddress, buf []byte) error {
	start, end := f.Range()
	if !flash.InRange(addr, uint32(len(buf)), start, end) {
		return flash.ErrMemoryNotReachable()
	}
	chipAddr := addr.Int()
	frame := make([]byte, 4+len(buf))
	frame[0] = cmdRead
	frame[1] = byte(chipAddr >> 16)
	frame[2] = byte(chipAddr >> 8)
	frame[3] = byte(chipAddr)
	if err := f.tx(frame); err != nil {
		return err
	}
	copy(buf, frame[4:])
	return nil
}

// Write page-programs buf starting at addr, splitting into pageSize-aligned
// chunks as the chip requires. Assumes the destination has been erased.
func (f *Flash) Write(addr flash.ExternalAddress, buf []byte) error {
	start, end := f.Range()
	if !flash.InRange(addr, uint32(len(buf)), start, end) {
		return flash.ErrMemoryNotReachable()
	}
	off := 0
	for off < len(buf) {
		chunk := pageSize - int(addr.Add(uint32(off)).Int())%pageSize
		if chunk > len(buf)-off {
			chunk = len(buf) - off
		}
		if err := f.pageProgram(addr.Add(uint32(off)), buf[off:off+chunk]); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

func (f *Flash) pageProgram(addr flash.ExternalAddress, data []byte) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	chipAddr := addr.Int()
	frame := make([]byte, 4+len(data))
	frame[0] = cmdPageProgram
	frame[1] = byte(chipAddr >> 16)
	frame[2] = byte(chipAddr >> 8)
	frame[3] = byte(chipAddr)
	copy(frame[4:], data)
	if err := f.tx(frame); err != nil {
		return err
	}
	return f.busyWait()
}

// Erase bulk-erases [Origin, Origin+Size) sector by sector; the chip has no
// arbitrary-range erase command, only fixed 4KB/64KB/whole-chip erases.
func (f *Flash) Erase() error {
	if f.Size%sectorSize != 0 {
		return flash.ErrMisalignedAccess()
	}
	for off := uint32(0); off < f.Size; off += sectorSize {
		if err := f.eraseSector(f.Origin.Add(off)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flash) eraseSector(addr flash.ExternalAddress) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	chipAddr := addr.Int()
	frame := []byte{cmdErase4KB, byte(chipAddr >> 16), byte(chipAddr >> 8), byte(chipAddr)}
	if err := f.tx(frame); err != nil {
		return err
	}
	return f.busyWait()
}
