package bootloader

import (
	"hash/crc32"
	"log/slog"
	"testing"

	"openenterprise/loadstone/bankcfg"
	"openenterprise/loadstone/bootmetrics"
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/flash/flashtest"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/serial"
	"openenterprise/loadstone/updatesignal"
)

func buildCRCImage(payload []byte, golden bool) []byte {
	data := append([]byte{}, payload...)
	if golden {
		data = append(data, []byte(image.GoldenMarker)...)
	}
	data = append(data, image.Magic[:]...)
	crc := crc32.ChecksumIEEE(data)
	trailer := []byte{byte(crc), byte(crc >> 8), byte(crc >> 16), byte(crc >> 24)}
	return append(data, trailer...)
}

func payloadOf(n int, fill byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = fill
	}
	return p
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type scenarioConfig struct {
	ext      *flashtest.Fake[flash.ExternalAddress]
	extBanks []image.Bank[flash.ExternalAddress]
	signal   updatesignal.Reader
	port     serial.Port
}

func newScenarioBootloader(t *testing.T, mcu *flashtest.Fake[flash.MCUAddress], cfg scenarioConfig) *Bootloader {
	t.Helper()
	lastJump = nil
	rebootCount = 0
	// The MCU flash driver (mcuflash) does a smart write, and the copy
	// engine relies on it to overwrite the boot bank without an erase.
	mcu.AllowDirectWrite = true

	banks := bankcfg.BankTable{
		MCU:      []image.Bank[flash.MCUAddress]{{Index: 1, Location: 0, Size: 1024, Bootable: true}},
		External: cfg.extBanks,
	}
	features := bankcfg.Features{SerialRecovery: cfg.port != nil, GoldenBank: true}
	memMap := bankcfg.MemoryMap{BootMetricsAddr: 0x20000000}

	opts := []Option{WithLogger(quietLogger())}
	if cfg.ext != nil {
		opts = append(opts, WithExternalFlash(cfg.ext))
	}
	if cfg.signal != nil {
		opts = append(opts, WithUpdateSignal(cfg.signal))
	}
	if cfg.port != nil {
		opts = append(opts, WithSerial(cfg.port))
	}
	return New(mcu, banks, features, memMap, NewCRCReaders(), image.CRCTrailerSize, opts...)
}

type fixedPlan struct{ plan updatesignal.UpdatePlan }

func (f fixedPlan) Read() (updatesignal.UpdatePlan, error) { return f.plan, nil }

func readMetrics(t *testing.T, bl *Bootloader) (bootmetrics.Metrics, bool) {
	t.Helper()
	if lastJump == nil {
		return bootmetrics.Metrics{}, false
	}
	return bootmetrics.Read(bl.memMap.BootMetricsAddr)
}

func TestScenario1_FreshBootValidImageInBootBankOnly(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	mcu.Seed(0, buildCRCImage(payloadOf(32, 0x00), false))

	bl := newScenarioBootloader(t, mcu, scenarioConfig{signal: fixedPlan{updatesignal.UpdatePlan{Kind: updatesignal.None}}})
	if err := bl.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lastJump == nil {
		t.Fatalf("expected a jump to occur")
	}
	m, ok := readMetrics(t, bl)
	if !ok || m.Path != bootmetrics.Direct {
		t.Fatalf("metrics = %+v, ok=%v, want Direct path", m, ok)
	}
}

func TestScenario2_UpdateAvailable(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	mcu.Seed(0, buildCRCImage(payloadOf(16, 0xAA), false)) // identifier A

	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 4096)
	ext.Seed(2048, buildCRCImage(payloadOf(16, 0xBB), false)) // bank 2, identifier B != A

	extBanks := []image.Bank[flash.ExternalAddress]{{Index: 2, Location: 2048, Size: 2048}}
	bl := newScenarioBootloader(t, mcu, scenarioConfig{
		ext: ext, extBanks: extBanks,
		signal: fixedPlan{updatesignal.UpdatePlan{Kind: updatesignal.Any}},
	})

	if err := bl.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := readMetrics(t, bl)
	if !ok || m.Path != bootmetrics.Updated || m.BankIndex != 2 {
		t.Fatalf("metrics = %+v, ok=%v, want Updated(2)", m, ok)
	}
}

func TestScenario3_SelectiveUpdateIgnoresOtherBanks(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	mcu.Seed(0, buildCRCImage(payloadOf(16, 0xAA), false))

	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 8192)
	ext.Seed(2048, buildCRCImage(payloadOf(16, 0xBB), false)) // bank 2
	ext.Seed(4096, buildCRCImage(payloadOf(16, 0xCC), false)) // bank 3

	extBanks := []image.Bank[flash.ExternalAddress]{
		{Index: 2, Location: 2048, Size: 2048},
		{Index: 3, Location: 4096, Size: 2048},
	}
	bl := newScenarioBootloader(t, mcu, scenarioConfig{
		ext: ext, extBanks: extBanks,
		signal: fixedPlan{updatesignal.UpdatePlan{Kind: updatesignal.Index, BankIndex: 3}},
	})

	if err := bl.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := readMetrics(t, bl)
	if !ok || m.Path != bootmetrics.Updated || m.BankIndex != 3 {
		t.Fatalf("metrics = %+v, ok=%v, want Updated(3)", m, ok)
	}
}

func TestScenario4_GoldenFallback(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	corrupt := buildCRCImage(payloadOf(16, 0xAA), false)
	corrupt[len(corrupt)-1] ^= 0xFF // corrupt the boot bank's CRC
	mcu.Seed(0, corrupt)

	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 8192)
	corruptExt := buildCRCImage(payloadOf(16, 0xBB), false)
	corruptExt[len(corruptExt)-1] ^= 0xFF
	ext.Seed(2048, corruptExt)                               // bank 2, also corrupted
	ext.Seed(4096, buildCRCImage(payloadOf(16, 0xCC), true)) // bank 3, golden, valid

	extBanks := []image.Bank[flash.ExternalAddress]{
		{Index: 2, Location: 2048, Size: 2048},
		{Index: 3, Location: 4096, Size: 2048, Golden: true},
	}
	bl := newScenarioBootloader(t, mcu, scenarioConfig{
		ext: ext, extBanks: extBanks,
		signal: fixedPlan{updatesignal.UpdatePlan{Kind: updatesignal.None}},
	})

	if err := bl.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := readMetrics(t, bl)
	if !ok || m.Path != bootmetrics.Restored || m.BankIndex != 3 {
		t.Fatalf("metrics = %+v, ok=%v, want Restored(3)", m, ok)
	}
}

func TestScenario5_TotalFailureEntersRecoveryAndRejectsEmptyStream(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024) // empty: BankEmpty
	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 8192)
	extBanks := []image.Bank[flash.ExternalAddress]{
		{Index: 2, Location: 2048, Size: 2048},
		{Index: 3, Location: 4096, Size: 2048, Golden: true},
	}
	port := flashtest.NewFakeSerial([]byte{0x04}) // lone EOT: empty recovery stream

	bl := newScenarioBootloader(t, mcu, scenarioConfig{
		ext: ext, extBanks: extBanks,
		signal: fixedPlan{updatesignal.UpdatePlan{Kind: updatesignal.None}},
		port:   port,
	})

	// An empty recovery stream leaves the golden bank empty, so
	// re-verification fails and Run reports a fatal error rather than
	// rebooting into an unverified image — the only safe outcome.
	if err := bl.Run(); err == nil {
		t.Fatalf("expected recovery with an empty stream to fail re-verification")
	}
	if rebootCount != 0 {
		t.Fatalf("must never reboot after a failed recovery re-verification")
	}
}

func TestScenario5b_TotalFailureRecoversSuccessfully(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 8192)
	extBanks := []image.Bank[flash.ExternalAddress]{
		{Index: 2, Location: 2048, Size: 2048},
		{Index: 3, Location: 4096, Size: 2048, Golden: true},
	}

	golden := buildCRCImage(payloadOf(16, 0xDD), true)
	var stream []byte
	for i := 0; i < len(golden); i += 128 {
		end := i + 128
		chunk := make([]byte, 128)
		if end > len(golden) {
			copy(chunk, golden[i:])
		} else {
			copy(chunk, golden[i:end])
		}
		block := []byte{0x01, byte(i/128 + 1), ^byte(i/128 + 1)}
		block = append(block, chunk...)
		var sum byte
		for _, b := range chunk {
			sum += b
		}
		block = append(block, sum)
		stream = append(stream, block...)
	}
	stream = append(stream, 0x04) // EOT

	port := flashtest.NewFakeSerial(stream)
	bl := newScenarioBootloader(t, mcu, scenarioConfig{
		ext: ext, extBanks: extBanks,
		signal: fixedPlan{updatesignal.UpdatePlan{Kind: updatesignal.None}},
		port:   port,
	})

	if err := bl.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rebootCount != 1 {
		t.Fatalf("rebootCount = %d, want 1", rebootCount)
	}
}
