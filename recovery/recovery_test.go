package recovery

import (
	"testing"

	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/flash/flashtest"
	"openenterprise/loadstone/image"
)

func block(num byte, payload byte) []byte {
	buf := make([]byte, 0, 3+PayloadSize+1)
	buf = append(buf, soh, num, ^num)
	data := make([]byte, PayloadSize)
	for i := range data {
		data[i] = payload
	}
	buf = append(buf, data...)
	var sum byte
	for _, b := range data {
		sum += b
	}
	buf = append(buf, sum)
	return buf
}

func TestReceive_TwoBlocksThenEOT(t *testing.T) {
	var stream []byte
	stream = append(stream, block(1, 0xAA)...)
	stream = append(stream, block(2, 0xBB)...)
	stream = append(stream, eot)

	port := flashtest.NewFakeSerial(stream)
	f := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	bank := image.Bank[flash.MCUAddress]{Index: 1, Location: 0, Size: 1024}

	n, err := Receive[flash.MCUAddress](port, f, bank)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2*PayloadSize {
		t.Fatalf("wrote %d bytes, want %d", n, 2*PayloadSize)
	}

	snapshot := f.Snapshot()
	for i := 0; i < PayloadSize; i++ {
		if snapshot[i] != 0xAA {
			t.Fatalf("byte %d = %#x, want 0xAA", i, snapshot[i])
		}
	}
	for i := PayloadSize; i < 2*PayloadSize; i++ {
		if snapshot[i] != 0xBB {
			t.Fatalf("byte %d = %#x, want 0xBB", i, snapshot[i])
		}
	}

	// One NAK to request the first block, then one ACK per accepted
	// block, then a final ACK for EOT.
	wantAcks := 3
	got := port.Output.Bytes()
	ackCount := 0
	for _, b := range got {
		if b == ack {
			ackCount++
		}
	}
	if ackCount != wantAcks {
		t.Fatalf("ack count = %d, want %d", ackCount, wantAcks)
	}
}

func TestReceive_DropsBadChecksumAndWaitsForRetransmit(t *testing.T) {
	goodBlock := block(1, 0xCC)
	badBlock := append([]byte{}, goodBlock...)
	badBlock[len(badBlock)-1] ^= 0xFF // corrupt checksum

	var stream []byte
	stream = append(stream, badBlock...)
	stream = append(stream, goodBlock...)
	stream = append(stream, eot)

	port := flashtest.NewFakeSerial(stream)
	f := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	bank := image.Bank[flash.MCUAddress]{Index: 1, Location: 0, Size: 1024}

	n, err := Receive[flash.MCUAddress](port, f, bank)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != PayloadSize {
		t.Fatalf("wrote %d bytes, want %d", n, PayloadSize)
	}
}
