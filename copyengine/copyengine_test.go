package copyengine

import (
	"testing"

	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/flash/flashtest"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/loaderr"
)

var validImage = []byte{
	0x68, 0x65, 0x6c, 0x6c, 0x6f, 0x20, 0x77, 0x6f, 0x72, 0x6c, 0x64, 0x0a,
	0xb7, 0xac, 0x9c, 0xc8, 0x9c, 0xcd, 0x8f, 0x8b,
	0x86, 0x9b, 0xa5, 0xb7, 0xcd, 0xae, 0x94, 0x8e, 0xa5, 0xa8,
	0xaf, 0x9c, 0xb5, 0x98, 0xb8, 0xcc, 0xb5, 0x8b, 0x91, 0xb5,
	0xc9, 0xa9, 0x8a, 0xbe,
	0xf0, 0xc9, 0x42, 0xad,
}

func TestCopy_CrossFlash_RoundTrips(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 1024)
	mcu.Seed(0, validImage)

	srcBank := image.Bank[flash.MCUAddress]{Index: 1, Location: 0, Size: 1024}
	dstBank := image.Bank[flash.ExternalAddress]{Index: 2, Location: 0, Size: 1024}

	reader := image.CRCReader[flash.MCUAddress]{}
	img, err := Copy[flash.MCUAddress, flash.ExternalAddress](reader, mcu, srcBank, ext, dstBank, image.CRCTrailerSize, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Size != 12 {
		t.Fatalf("copied image size = %d, want 12", img.Size)
	}

	dstReader := image.CRCReader[flash.ExternalAddress]{}
	dstImg, err := dstReader.At(ext, dstBank)
	if err != nil {
		t.Fatalf("destination failed re-verification: %v", err)
	}
	if dstImg.Identifier != img.Identifier {
		t.Fatalf("identifiers diverged after copy: %v != %v", dstImg.Identifier, img.Identifier)
	}
}

func TestCopy_RejectsSameBankIndex(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 2048)
	mcu.Seed(0, validImage)
	bank := image.Bank[flash.MCUAddress]{Index: 1, Location: 0, Size: 1024}

	_, err := Copy[flash.MCUAddress, flash.MCUAddress](image.CRCReader[flash.MCUAddress]{}, mcu, bank, mcu, bank, image.CRCTrailerSize, false)
	if !loaderr.Is(err, loaderr.ConfigurationError) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestCopy_MustBeGoldenRejectsNonGoldenSource(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 1024)
	mcu.Seed(0, validImage)

	srcBank := image.Bank[flash.MCUAddress]{Index: 1, Location: 0, Size: 1024}
	dstBank := image.Bank[flash.ExternalAddress]{Index: 2, Location: 0, Size: 1024}

	_, err := Copy[flash.MCUAddress, flash.ExternalAddress](image.CRCReader[flash.MCUAddress]{}, mcu, srcBank, ext, dstBank, image.CRCTrailerSize, true)
	if !loaderr.Is(err, loaderr.ImageIsNotGolden) {
		t.Fatalf("err = %v, want ImageIsNotGolden", err)
	}
}

func TestCopy_DestinationTooSmall(t *testing.T) {
	mcu := flashtest.NewFake[flash.MCUAddress]("mcu", 0, 1024)
	ext := flashtest.NewFake[flash.ExternalAddress]("ext", 0, 16)
	mcu.Seed(0, validImage)

	srcBank := image.Bank[flash.MCUAddress]{Index: 1, Location: 0, Size: 1024}
	dstBank := image.Bank[flash.ExternalAddress]{Index: 2, Location: 0, Size: 16}

	_, err := Copy[flash.MCUAddress, flash.ExternalAddress](image.CRCReader[flash.MCUAddress]{}, mcu, srcBank, ext, dstBank, image.CRCTrailerSize, false)
	if !loaderr.Is(err, loaderr.ImageTooBig) {
		t.Fatalf("err = %v, want ImageTooBig", err)
	}
}
