package image

import (
	"crypto/sha256"

	"openenterprise/loadstone/flash"
)

// scanner streams a bank's bytes through a fixed-size window looking for
// the MAGIC sentinel, never holding more than scanBufSize bytes at once —
// the Go shape of the original's `until_sequence` combinator over a
// bounded buffer.
type scanner[A flash.Address[A]] struct {
	f    flash.ReadWrite[A]
	bank Bank[A]
	buf  [scanBufSize]byte
}

// locateMagic scans forward from the start of the bank, invoking onByte
// once for every byte confirmed not to be part of MAGIC, in stream order.
// It returns the offset (from bank.Location) of MAGIC's first byte.
//
// A candidate match that straddles two reads is never missed: the last
// MagicSize-1 bytes of each window are held back as carry into the next
// one, so every MagicSize-byte span of the bank is checked exactly once
// against a contiguous window.
func (s *scanner[A]) locateMagic(onByte func(b byte)) (uint32, error) {
	overlap := uint32(MagicSize - 1)
	stride := uint32(scanBufSize) - overlap

	var carry []byte
	var scanned uint32
	for scanned < s.bank.Size {
		remaining := s.bank.Size - scanned
		chunkLen := stride
		if chunkLen > remaining {
			chunkLen = remaining
		}
		chunk := s.buf[:chunkLen]
		if err := s.f.Read(s.bank.Location.Add(scanned), chunk); err != nil {
			return 0, err
		}

		window := append(carry, chunk...)
		if idx := indexMagic(window); idx >= 0 {
			magicOffset := scanned - uint32(len(carry)) + uint32(idx)
			for _, b := range window[:idx] {
				onByte(b)
			}
			return magicOffset, nil
		}

		scanned += chunkLen
		keep := overlap
		if uint32(len(window)) < keep {
			keep = uint32(len(window))
		}
		safeLen := uint32(len(window)) - keep
		for _, b := range window[:safeLen] {
			onByte(b)
		}
		carry = append([]byte(nil), window[safeLen:]...)
	}
	return 0, errBankEmpty(s.f.Label())
}

// indexMagic returns the offset of the first full MagicSize-byte match of
// Magic within window, or -1. A partial match at the tail of window that
// would only complete in a later chunk does not count as a match here.
func indexMagic(window []byte) int {
	if len(window) < MagicSize {
		return -1
	}
outer:
	for i := 0; i+MagicSize <= len(window); i++ {
		for j := 0; j < MagicSize; j++ {
			if window[i+j] != Magic[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// readGoldenMarker reads the GoldenMarker-length span immediately before
// magicOffset and reports whether it matches. Called only after MAGIC has
// already been located, so a corrupted-MAGIC bank never reports golden.
func readGoldenMarker[A flash.Address[A]](f flash.ReadWrite[A], bank Bank[A], magicOffset uint32) (bool, error) {
	markerLen := uint32(len(GoldenMarker))
	if magicOffset < markerLen {
		return false, nil
	}
	var buf [len(GoldenMarker)]byte
	if err := f.Read(bank.Location.Add(magicOffset-markerLen), buf[:]); err != nil {
		return false, err
	}
	return string(buf[:]) == GoldenMarker, nil
}

// hashPayload streams exactly payloadSize bytes starting at start through a
// SHA-256 digest using a fixed-size buffer, for the ECDSA reader's
// second pass over the already-located payload.
func hashPayload[A flash.Address[A]](f flash.ReadWrite[A], start A, payloadSize uint32) ([]byte, error) {
	digest := sha256.New()
	var buf [scanBufSize]byte
	var read uint32
	for read < payloadSize {
		chunkLen := uint32(scanBufSize)
		if remaining := payloadSize - read; chunkLen > remaining {
			chunkLen = remaining
		}
		chunk := buf[:chunkLen]
		if err := f.Read(start.Add(read), chunk); err != nil {
			return nil, err
		}
		digest.Write(chunk)
		read += chunkLen
	}
	return digest.Sum(nil), nil
}
