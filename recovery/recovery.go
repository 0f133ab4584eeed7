// Package recovery implements the framed byte protocol (a subset of
// XMODEM) used to accept a new image over a serial link when no bank
// holds a bootable one (spec component C5).
package recovery

import (
	"io"
	"time"

	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/loaderr"
	"openenterprise/loadstone/serial"
)

// Protocol control bytes, as spec.md §4.5.
const (
	soh byte = 0x01
	ack byte = 0x06
	nak byte = 0x15
	eot byte = 0x04
	etb byte = 0x17
	can byte = 0x18
)

// PayloadSize is the fixed per-block data size.
const PayloadSize = 128

// blockFrameSize is block-number + complement + payload + checksum, the
// bytes following SOH in one frame.
const blockFrameSize = 1 + 1 + PayloadSize + 1

// BlockTimeout is the per-read-attempt deadline.
const BlockTimeout = 3 * time.Second

// MaxRetries is the total retry budget for the whole transfer.
const MaxRetries = 10

// Receive runs the receiver side of the protocol: it sends an initial NAK
// to request the first block, accepts blocks in order, silently drops any
// block with an unexpected number or bad checksum (the sender is expected
// to retransmit on its own timeout), and ACKs every accepted block and the
// terminating EOT/ETB. The accumulated stream is written into bank,
// sector-aligned by virtue of each 128-byte block landing at a multiple of
// PayloadSize, as it arrives.
//
// It does not itself verify the result; the caller passes the same bank to
// an image.Reader afterward, per spec.md §4.5.
func Receive[A flash.Address[A]](port serial.Port, dst flash.ReadWrite[A], bank image.Bank[A]) (uint32, error) {
	if err := dst.Erase(); err != nil {
		return 0, err
	}

	expected := uint8(1)
	var offset uint32
	retries := 0

	if _, err := port.Write([]byte{nak}); err != nil {
		return 0, flash.ErrPeripheralError(err)
	}

	for {
		if retries > MaxRetries {
			return 0, loaderr.New(loaderr.DriverError, "recovery exceeded retry budget")
		}

		if err := port.SetReadDeadline(time.Now().Add(BlockTimeout)); err != nil {
			return 0, flash.ErrPeripheralError(err)
		}
		var head [1]byte
		if _, err := io.ReadFull(port, head[:]); err != nil {
			retries++
			_, _ = port.Write([]byte{nak})
			continue
		}

		switch head[0] {
		case eot, etb:
			_, _ = port.Write([]byte{ack})
			return offset, nil
		case can:
			return 0, loaderr.New(loaderr.DriverError, "recovery cancelled by sender")
		case soh:
			var frame [blockFrameSize]byte
			if _, err := io.ReadFull(port, frame[:]); err != nil {
				retries++
				continue
			}
			blockNum := frame[0]
			complement := frame[1]
			payload := frame[2 : 2+PayloadSize]
			checksum := frame[len(frame)-1]

			if complement != ^blockNum || blockNum != expected || sum8(payload) != checksum {
				continue // silently dropped, no NAK; sender retransmits
			}
			if offset+PayloadSize > bank.Size {
				return 0, loaderr.New(loaderr.ImageTooBig, "recovery stream exceeds bank "+dst.Label())
			}
			if err := dst.Write(bank.Location.Add(offset), payload); err != nil {
				return 0, err
			}
			offset += PayloadSize
			expected++ // wraps 255 -> 0 -> 1 per spec's "1..=255 (wraps)"
			if expected == 0 {
				expected = 1
			}
			_, _ = port.Write([]byte{ack})
		default:
			continue // unrecognized byte, ignored
		}
	}
}

func sum8(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}
