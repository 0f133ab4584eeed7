package image

import (
	"encoding/binary"
	"hash/crc32"

	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/loaderr"
)

// CRCTrailerSize is the width of the stored integrity trailer in CRC mode.
const CRCTrailerSize = 4

// CRCReader is the image.Reader used when the build is configured for
// CRC32/IEEE integrity checking rather than ECDSA signatures (spec §9: a
// device picks exactly one mode at build time).
type CRCReader[A flash.Address[A]] struct{}

// At implements Reader.
func (CRCReader[A]) At(f flash.ReadWrite[A], bank Bank[A]) (Image[A], error) {
	s := &scanner[A]{f: f, bank: bank}
	digest := crc32.NewIEEE()
	magicOffset, err := s.locateMagic(func(b byte) { digest.Write([]byte{b}) })
	if err != nil {
		return Image[A]{}, err
	}
	digest.Write(Magic[:])

	trailerOffset := magicOffset + uint32(MagicSize)
	if trailerOffset+CRCTrailerSize > bank.Size {
		return Image[A]{}, errImageTooBig(f.Label())
	}
	var trailer [CRCTrailerSize]byte
	if err := f.Read(bank.Location.Add(trailerOffset), trailer[:]); err != nil {
		return Image[A]{}, err
	}
	stored := binary.LittleEndian.Uint32(trailer[:])
	computed := digest.Sum32()
	if stored != computed {
		return Image[A]{}, loaderr.New(loaderr.CrcInvalid, "stored CRC does not match computed CRC")
	}

	golden, err := readGoldenMarker(f, bank, magicOffset)
	if err != nil {
		return Image[A]{}, err
	}
	payloadSize := magicOffset
	if golden {
		payloadSize -= uint32(len(GoldenMarker))
	}

	return Image[A]{
		Location:   bank.Location,
		Size:       payloadSize,
		Bootable:   bank.Bootable,
		Golden:     golden,
		Identifier: IdentifierFromCRC(stored),
	}, nil
}
