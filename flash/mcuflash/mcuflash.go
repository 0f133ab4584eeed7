//go:build tinygo

// Package mcuflash implements flash.ReadWrite[flash.MCUAddress] for the
// RP2350's internal XIP flash, talking to the chip through the bootrom ROM
// functions rather than TinyGo's machine.Flash (whose offset handling
// doesn't match a multi-bank bootloader layout). Adapted from the
// bindicator's OTA driver, generalized from its fixed two-partition
// A/B layout to an arbitrary bank table supplied by bankcfg.
package mcuflash

/*
#include <stdint.h>
#include <stdbool.h>
#include <stddef.h>

#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_FUNC_CONNECT_INTERNAL_FLASH ROM_TABLE_CODE('I', 'F')
#define ROM_FUNC_FLASH_EXIT_XIP         ROM_TABLE_CODE('E', 'X')
#define ROM_FUNC_FLASH_RANGE_ERASE      ROM_TABLE_CODE('R', 'E')
#define ROM_FUNC_FLASH_RANGE_PROGRAM    ROM_TABLE_CODE('R', 'P')
#define ROM_FUNC_FLASH_FLUSH_CACHE      ROM_TABLE_CODE('F', 'C')

#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_WELL_KNOWN_PTR_SIZE 2
#define BOOTROM_TABLE_LOOKUP_OFFSET (BOOTROM_FUNC_TABLE_OFFSET + BOOTROM_WELL_KNOWN_PTR_SIZE)

#define RT_FLAG_FUNC_ARM_SEC 0x0004

#define XIP_BASE 0x10000000

typedef void *(*rom_table_lookup_fn)(uint32_t code, uint32_t mask);
typedef void (*flash_connect_internal_fn)(void);
typedef void (*flash_exit_xip_fn)(void);
typedef void (*flash_range_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t block_cmd);
typedef void (*flash_range_program_fn)(uint32_t addr, const uint8_t *data, size_t count);
typedef void (*flash_flush_cache_fn)(void);

__attribute__((always_inline))
static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup =
        (rom_table_lookup_fn)(uintptr_t)*(uint16_t*)(BOOTROM_TABLE_LOOKUP_OFFSET);
    return rom_table_lookup(code, RT_FLAG_FUNC_ARM_SEC);
}

#define FLASH_SECTOR_SIZE      4096
#define FLASH_SECTOR_ERASE_CMD 0x20

// mcuflash_write programs len bytes of data at the given raw flash offset
// (not an XIP address).
static int mcuflash_write(uint32_t offset, const uint8_t *data, uint32_t len) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_program_fn program = (flash_range_program_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_PROGRAM);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    if (!connect || !exit_xip || !program || !flush) return -1;

    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    connect();
    exit_xip();
    program(offset, data, len);
    flush();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
    return 0;
}

// mcuflash_erase erases count bytes (a multiple of FLASH_SECTOR_SIZE)
// starting at the given raw flash offset.
static int mcuflash_erase(uint32_t offset, uint32_t count) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_erase_fn erase = (flash_range_erase_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_ERASE);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    if (!connect || !exit_xip || !erase || !flush) return -1;

    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    connect();
    exit_xip();
    erase(offset, count, FLASH_SECTOR_SIZE, FLASH_SECTOR_ERASE_CMD);
    flush();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
    return 0;
}
*/
import "C"

import (
	"unsafe"

	"openenterprise/loadstone/flash"
)

// SectorSize is the smallest erasable unit on the RP2350's internal flash.
const SectorSize = 4096

// Flash is a flash.ReadWrite[flash.MCUAddress] backed by the bootrom ROM
// flash functions, covering [Origin, Origin+Size) of the chip's raw
// flash offset space.
type Flash struct {
	Origin flash.MCUAddress
	Size   uint32
}

func (f Flash) Label() string { return "mcu-internal" }

func (f Flash) Range() (flash.MCUAddress, flash.MCUAddress) {
	return f.Origin, f.Origin.Add(f.Size)
}

// Read reads directly through the XIP memory map; internal flash is always
// memory-mapped for reads on this family, so no ROM call is needed.
func (f Flash) Read(addr flash.MCUAddress, buf []byte) error {
	start, end := f.Range()
	if !flash.InRange(addr, uint32(len(buf)), start, end) {
		return flash.ErrMemoryNotReachable()
	}
	xip := uintptr(0x10000000 + addr.Int())
	src := unsafe.Slice((*byte)(unsafe.Pointer(xip)), len(buf))
	copy(buf, src)
	return nil
}

// Write performs a "smart write": it only erases the containing sector(s)
// when buf would need some bit to flip 0->1 over what's already there,
// since a bare ROM program call silently fails to set a bit that erase
// didn't clear first.
func (f Flash) Write(addr flash.MCUAddress, buf []byte) error {
	start, end := f.Range()
	if !flash.InRange(addr, uint32(len(buf)), start, end) {
		return flash.ErrMemoryNotReachable()
	}
	if len(buf) == 0 {
		return nil
	}

	existing := make([]byte, len(buf))
	if err := f.Read(addr, existing); err != nil {
		return err
	}
	needsErase := false
	for i, b := range buf {
		if existing[i]&b != b {
			needsErase = true
			break
		}
	}
	if needsErase {
		sectorStart := addr.Int() - addr.Int()%SectorSize
		sectorEnd := (addr.Int() + uint32(len(buf)) + SectorSize - 1) / SectorSize * SectorSize
		if ret := C.mcuflash_erase(C.uint32_t(sectorStart), C.uint32_t(sectorEnd-sectorStart)); ret != 0 {
			return flash.ErrPeripheralError(nil)
		}
	}

	ret := C.mcuflash_write(C.uint32_t(addr.Int()), (*C.uint8_t)(unsafe.Pointer(&buf[0])), C.uint32_t(len(buf)))
	if ret != 0 {
		return flash.ErrPeripheralError(nil)
	}
	return nil
}

// Erase bulk-erases the whole [Origin, Origin+Size) region, sector by
// sector in one ROM call.
func (f Flash) Erase() error {
	if f.Size%SectorSize != 0 {
		return flash.ErrMisalignedAccess()
	}
	ret := C.mcuflash_erase(C.uint32_t(f.Origin.Int()), C.uint32_t(f.Size))
	if ret != 0 {
		return flash.ErrPeripheralError(nil)
	}
	return nil
}
