// Package copyengine moves a verified image from one bank to another,
// same-flash or cross-flash, in bounded chunks (spec component C3).
package copyengine

import (
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/loaderr"
)

// ChunkSize bounds a single read/write round-trip, minimizing erase cycles
// on sector-erase flash the way a real firmware copy loop must.
const ChunkSize = 64 * 1024

// Copy verifies the image in srcBank via reader, then copies its full
// on-flash footprint (payload, golden marker, MAGIC, trailer) into dstBank.
// trailerSize is image.CRCTrailerSize or image.SignatureSize depending on
// the build's verification mode. The two flash objects may be the same
// value (same-flash copy) as long as the two banks are distinct.
//
// On any read or write error the copy aborts immediately; the destination
// bank is left in an indeterminate state and the caller MUST re-verify it
// (via reader.At on the destination) before treating it as bootable. The
// engine performs no retries of its own.
func Copy[SrcA flash.Address[SrcA], DstA flash.Address[DstA]](
	reader image.Reader[SrcA],
	src flash.ReadWrite[SrcA], srcBank image.Bank[SrcA],
	dst flash.ReadWrite[DstA], dstBank image.Bank[DstA],
	trailerSize uint32,
	mustBeGolden bool,
) (image.Image[SrcA], error) {
	var zero image.Image[SrcA]

	// Bank indices are unique across every flash chip (spec.md §3), so an
	// index match alone is sufficient to detect "same bank" even when a
	// same-flash copy and a cross-flash copy share this one code path.
	if srcBank.Index == dstBank.Index {
		return zero, loaderr.New(loaderr.ConfigurationError, "source and destination bank are identical")
	}

	img, err := reader.At(src, srcBank)
	if err != nil {
		return zero, err
	}
	if mustBeGolden && !img.Golden {
		return zero, loaderr.New(loaderr.ImageIsNotGolden, "copy requires a golden source image")
	}

	totalSize := img.TotalSize(trailerSize)
	if totalSize > dstBank.Size {
		return zero, loaderr.New(loaderr.ImageTooBig, "image footprint exceeds destination bank "+dst.Label())
	}

	var buf [ChunkSize]byte
	var offset uint32
	for offset < totalSize {
		n := uint32(ChunkSize)
		if remaining := totalSize - offset; n > remaining {
			n = remaining
		}
		chunk := buf[:n]
		if err := src.Read(srcBank.Location.Add(offset), chunk); err != nil {
			return zero, err
		}
		if err := dst.Write(dstBank.Location.Add(offset), chunk); err != nil {
			return zero, err
		}
		offset += n
	}

	return img, nil
}
