// Package image locates, parses and verifies firmware images stored in
// flash banks (spec component C2). The Readers in this package return an
// Image descriptor only after scanning a bank and verifying its trailer.
package image

import (
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/loaderr"
)

// GoldenMarker precedes the integrity trailer for golden images only.
const GoldenMarker = "XPIcbOUrpG"

// magicString is never written to flash as-is: any binary that embeds this
// constant (this one included) would otherwise look like it terminates
// early. Only its bytewise inversion, Magic, is ever stored.
const magicString = "HSc7c2ptydZH2QkqZWPcJgG3JtnJ6VuA"

// MagicSize is the length in bytes of the MAGIC sentinel.
const MagicSize = len(magicString)

// Magic is the bytewise-inverted sentinel actually written to, and scanned
// for on, flash.
var Magic = invert([]byte(magicString))

func invert(b []byte) [MagicSize]byte {
	var out [MagicSize]byte
	for i, c := range b {
		out[i] = ^c
	}
	return out
}

// Identifier is the value used to decide "same image" vs "different image":
// a CRC32 in CRC mode, a P-256 signature in ECDSA mode. Sized to the larger
// of the two so a single comparable array type serves both build modes.
type Identifier [64]byte

// IdentifierFromCRC packs a CRC32 into the low 4 bytes of an Identifier,
// zero-padding the rest.
func IdentifierFromCRC(crc uint32) Identifier {
	var id Identifier
	id[0] = byte(crc)
	id[1] = byte(crc >> 8)
	id[2] = byte(crc >> 16)
	id[3] = byte(crc >> 24)
	return id
}

// Bank is a fixed-at-build-time descriptor of a flash region that may hold
// at most one image. Banks are referenced by value throughout, per spec.
type Bank[A flash.Address[A]] struct {
	Index    uint8
	Location A
	Size     uint32
	Bootable bool
	Golden   bool
}

// End returns the address immediately past this bank.
func (b Bank[A]) End() A { return b.Location.Add(b.Size) }

// Image is a descriptor produced only by a successful Reader.At call.
type Image[A flash.Address[A]] struct {
	Location   A
	Size       uint32
	Bootable   bool
	Golden     bool
	Identifier Identifier
}

// TotalSize is the image's footprint on flash including decoration: the
// payload, the golden marker (if golden), MAGIC, and the trailer.
func (img Image[A]) TotalSize(trailerSize uint32) uint32 {
	total := img.Size + uint32(MagicSize) + trailerSize
	if img.Golden {
		total += uint32(len(GoldenMarker))
	}
	return total
}

// Reader scans a bank for a valid image. CRCReader and ECDSAReader are the
// two concrete implementations selected at build time (spec §9's "single
// mode chosen at build time" open question).
type Reader[A flash.Address[A]] interface {
	At(f flash.ReadWrite[A], bank Bank[A]) (Image[A], error)
}

// scanBufSize bounds the stack-sized buffer every Reader implementation
// streams through; spec.md §4.2 requires it stay at or under 256 bytes
// regardless of image size.
const scanBufSize = 256

// errBankEmpty is returned when a bank is scanned end-to-end without
// locating MAGIC.
func errBankEmpty(bankLabel string) error {
	return loaderr.New(loaderr.BankEmpty, "no MAGIC sentinel found in bank "+bankLabel)
}

// errImageTooBig is returned when MAGIC is found but the integrity trailer
// after it would extend past the end of the bank.
func errImageTooBig(bankLabel string) error {
	return loaderr.New(loaderr.ImageTooBig, "payload exceeds capacity of bank "+bankLabel)
}
