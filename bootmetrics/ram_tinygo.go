//go:build tinygo

package bootmetrics

import "unsafe"

// Write stores m at the absolute RAM address addr (from bankcfg.MemoryMap),
// using unsafe.Pointer the same way a linker-placed symbol would be
// written through in C. This is the only place in the package that
// touches raw memory; everything else works with the plain Metrics value.
func Write(addr uintptr, m Metrics) {
	buf := Encode(m)
	dst := (*[Size]byte)(unsafe.Pointer(addr))
	*dst = buf
}

// Read loads and decodes the record at addr, for the booted image's own
// startup code (outside this repository's scope). In-repo tests exercise
// the !tinygo equivalent in ram_host.go instead.
func Read(addr uintptr) (Metrics, bool) {
	src := (*[Size]byte)(unsafe.Pointer(addr))
	return Decode(*src)
}
