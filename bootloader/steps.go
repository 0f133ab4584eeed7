package bootloader

import (
	"openenterprise/loadstone/bootmetrics"
	"openenterprise/loadstone/flash"
	"openenterprise/loadstone/image"
	"openenterprise/loadstone/loaderr"
	"openenterprise/loadstone/recovery"
)

// searchForUpdate implements Step D. It considers every non-golden,
// non-boot bank in MCU-then-external ascending-index order (optionally
// restricted to a single index), stopping at the first bank whose image
// differs from the current boot bank's image (spec.md §9: "stop on first
// matching identifier" resolves the opposite case — a match ends the
// search entirely, up to date).
func (b *Bootloader) searchForUpdate(restrictIndex *uint8) (bootmetrics.PathTag, uint8, bool) {
	bootImg, bootErr := b.readers.MCU.At(b.mcu, b.bootBank())
	bootValid := bootErr == nil

	for _, c := range b.candidates() {
		if c.golden {
			continue
		}
		if restrictIndex != nil && c.index != *restrictIndex {
			continue
		}
		b.log.Info("update:scan", "bank", c.index)
		candidateImg, err := c.verify()
		if err != nil {
			b.log.Warn("update:scan-failed", "bank", c.index, "error", err)
			continue
		}
		if !bootValid || candidateImg.identifier != bootImg.Identifier {
			b.log.Info("update:replacing", "bank", c.index)
			if _, err := c.copyToBoot(false); err != nil {
				b.log.Warn("update:copy-failed", "bank", c.index, "error", err)
				continue
			}
			return bootmetrics.Updated, c.index, true
		}
		b.log.Info("update:up-to-date", "bank", c.index)
		return bootmetrics.Direct, 0, false
	}
	return bootmetrics.Direct, 0, false
}

// restore implements Step E: try every non-golden bank (MCU then
// external), then every golden bank (MCU then external), copying each
// candidate into the boot bank and re-verifying before accepting it.
func (b *Bootloader) restore(startMs uint32) error {
	all := b.candidates()

	var nonGolden, golden []candidate
	for _, c := range all {
		if c.golden {
			golden = append(golden, c)
		} else {
			nonGolden = append(nonGolden, c)
		}
	}

	for _, c := range append(nonGolden, golden...) {
		b.log.Info("restore:attempt", "bank", c.index, "golden", c.golden)
		if _, err := c.copyToBoot(c.golden); err != nil {
			b.log.Warn("restore:copy-failed", "bank", c.index, "error", err)
			continue
		}
		if _, err := b.readers.MCU.At(b.mcu, b.bootBank()); err != nil {
			b.log.Warn("restore:reverify-failed", "bank", c.index, "error", err)
			continue
		}
		b.log.Info("restore:succeeded", "bank", c.index)
		return b.boot(startMs, bootmetrics.Restored, c.index)
	}

	b.log.Error("restore:exhausted")
	return b.enterRecovery(startMs)
}

// boot is Step F. It delegates to verifyAndBoot, which re-verifies the boot
// bank (Step F never trusts a previous check across a step boundary) and,
// if still valid, writes BootMetrics and jumps; verifyAndBoot is the single
// call site that invokes the non-returning jump.
func (b *Bootloader) boot(startMs uint32, path bootmetrics.PathTag, bankIndex uint8) error {
	return b.verifyAndBoot(startMs, path, bankIndex)
}

func (b *Bootloader) verifyAndBoot(startMs uint32, path bootmetrics.PathTag, bankIndex uint8) error {
	img, err := b.readers.MCU.At(b.mcu, b.bootBank())
	if err != nil {
		b.log.Error("boot:final-verification-failed", "error", err)
		return b.restore(startMs)
	}

	m := bootmetrics.Metrics{Path: path, BankIndex: bankIndex}
	if now := b.nowMs(); now != bootmetrics.ElapsedUnavailable {
		m = m.WithElapsed(now - startMs)
	}
	bootmetrics.Write(b.memMap.BootMetricsAddr, m)

	b.log.Info("boot:jump", "path", path.String(), "bank", bankIndex)
	b.jump(img)
	return nil
}

// enterRecovery implements Step G: prompt on serial, accept one image via
// C5 into the first golden bank (or the boot bank if none exists),
// re-verify, and reboot. Without the recovery feature enabled, this is a
// fatal halt.
func (b *Bootloader) enterRecovery(startMs uint32) error {
	if !b.features.SerialRecovery {
		b.log.Error("recover:disabled-fatal")
		return fatalNoRecovery()
	}

	serialPort := b.port
	target := b.recoveryTarget()

	b.log.Info("recover:awaiting-image")
	if target.external {
		if _, err := recovery.Receive[flash.ExternalAddress](serialPort, b.external, target.externalBank); err != nil {
			b.log.Error("recover:receive-failed", "error", err)
			return fatalRecoveryFailed(err)
		}
		if _, err := b.readers.External.At(b.external, target.externalBank); err != nil {
			b.log.Error("recover:reverify-failed", "error", err)
			return fatalRecoveryFailed(err)
		}
	} else {
		if _, err := recovery.Receive[flash.MCUAddress](serialPort, b.mcu, target.mcuBank); err != nil {
			b.log.Error("recover:receive-failed", "error", err)
			return fatalRecoveryFailed(err)
		}
		if _, err := b.readers.MCU.At(b.mcu, target.mcuBank); err != nil {
			b.log.Error("recover:reverify-failed", "error", err)
			return fatalRecoveryFailed(err)
		}
	}

	b.log.Info("recover:rebooting")
	b.reboot()
	return nil
}

// recoveryTarget resolves "the first golden bank that exists, or the boot
// bank if none" per spec.md §4.6 Step G.
type recoveryTargetBank struct {
	external     bool
	mcuBank      image.Bank[flash.MCUAddress]
	externalBank image.Bank[flash.ExternalAddress]
}

func (b *Bootloader) recoveryTarget() recoveryTargetBank {
	for _, bank := range b.banks.MCU {
		if bank.Golden {
			return recoveryTargetBank{mcuBank: bank}
		}
	}
	if b.external != nil {
		for _, bank := range b.banks.External {
			if bank.Golden {
				return recoveryTargetBank{external: true, externalBank: bank}
			}
		}
	}
	return recoveryTargetBank{mcuBank: b.bootBank()}
}

func fatalNoRecovery() error {
	return loaderr.New(loaderr.ConfigurationError, "all restore candidates exhausted and recovery is disabled")
}

func fatalRecoveryFailed(cause error) error {
	return loaderr.Wrap(loaderr.DriverError, cause)
}
