package bootmetrics

import "testing"

func TestEncodeDecode_RoundTrips(t *testing.T) {
	m := Metrics{Path: Updated, BankIndex: 2}.WithElapsed(1234)
	buf := Encode(m)
	got, ok := Decode(buf)
	if !ok {
		t.Fatalf("decode reported invalid magic words")
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestEncode_MagicWords(t *testing.T) {
	buf := Encode(Metrics{Path: Direct})
	start := getU32(buf[0:4])
	end := getU32(buf[12:16])
	if start != MagicStart || end != MagicEnd {
		t.Fatalf("magic words = %#x / %#x", start, end)
	}
}

func TestDecode_RejectsCorruptedMagic(t *testing.T) {
	buf := Encode(Metrics{Path: Restored, BankIndex: 3})
	buf[0] ^= 0xFF
	if _, ok := Decode(buf); ok {
		t.Fatalf("decode accepted a corrupted magic_start")
	}
}

func TestEncode_NoElapsedUsesSentinel(t *testing.T) {
	buf := Encode(Metrics{Path: Direct})
	if getU32(buf[8:12]) != noneElapsed {
		t.Fatalf("elapsed field = %#x, want sentinel", getU32(buf[8:12]))
	}
}

func TestWriteRead_HostRoundTrip(t *testing.T) {
	const addr = 0x20000000
	m := Metrics{Path: Updated, BankIndex: 1}.WithElapsed(42)
	Write(addr, m)
	got, ok := Read(addr)
	if !ok || got != m {
		t.Fatalf("got %+v, %v, want %+v, true", got, ok, m)
	}
}
