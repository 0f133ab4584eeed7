package bootloader

import (
	"openenterprise/loadstone/copyengine"
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
)

// scanResult is the address-type-erased projection of an image.Image that
// Step D/E decision logic needs. Bundling just these two fields lets one
// candidate list mix MCU-backed and external-backed banks.
type scanResult struct {
	golden     bool
	identifier image.Identifier
}

// candidate is one bank the orchestrator can verify and, if needed, copy
// into the boot bank. verify and copyToBoot close over the concrete
// flash/address type of the bank they describe.
type candidate struct {
	index  uint8
	golden bool
	verify func() (scanResult, error)
	// copyToBoot copies this candidate's image into the boot bank,
	// requiring it be golden when mustBeGolden is set.
	copyToBoot func(mustBeGolden bool) (scanResult, error)
}

// candidates builds the full MCU-then-external candidate list, excluding
// the boot bank itself, in ascending index order within each chip (which
// is also the global ascending order, since Step A requires MCU bank
// indices to precede external ones contiguously).
func (b *Bootloader) candidates() []candidate {
	bootBank := b.bootBank()
	var out []candidate

	for _, bank := range b.banks.MCU {
		if bank.Index == bootBank.Index {
			continue
		}
		bank := bank
		out = append(out, candidate{
			index:  bank.Index,
			golden: bank.Golden,
			verify: func() (scanResult, error) {
				img, err := b.readers.MCU.At(b.mcu, bank)
				if err != nil {
					return scanResult{}, err
				}
				return scanResult{golden: img.Golden, identifier: img.Identifier}, nil
			},
			copyToBoot: func(mustBeGolden bool) (scanResult, error) {
				img, err := copyengine.Copy[flash.MCUAddress, flash.MCUAddress](b.readers.MCU, b.mcu, bank, b.mcu, bootBank, b.trailer, mustBeGolden)
				if err != nil {
					return scanResult{}, err
				}
				return scanResult{golden: img.Golden, identifier: img.Identifier}, nil
			},
		})
	}

	if b.external != nil {
		for _, bank := range b.banks.External {
			bank := bank
			out = append(out, candidate{
				index:  bank.Index,
				golden: bank.Golden,
				verify: func() (scanResult, error) {
					img, err := b.readers.External.At(b.external, bank)
					if err != nil {
						return scanResult{}, err
					}
					return scanResult{golden: img.Golden, identifier: img.Identifier}, nil
				},
				copyToBoot: func(mustBeGolden bool) (scanResult, error) {
					img, err := copyengine.Copy[flash.ExternalAddress, flash.MCUAddress](b.readers.External, b.external, bank, b.mcu, bootBank, b.trailer, mustBeGolden)
					if err != nil {
						return scanResult{}, err
					}
					return scanResult{golden: img.Golden, identifier: img.Identifier}, nil
				},
			})
		}
	}

	return out
}
