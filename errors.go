package dsi

import "errors"

// Sentinel error kinds the core can return. Callers use errors.Is to match.
var (
	ErrBadNandFooter      = errors.New("dsi: bad NAND footer")
	ErrBadNandMac         = errors.New("dsi: NAND/ES MAC verification failed")
	ErrUnsupportedBios    = errors.New("dsi: unsupported or missing BIOS image")
	ErrCartMissing        = errors.New("dsi: no cartridge loaded")
	ErrModcryptOutOfRange = errors.New("dsi: modcrypt region out of range")
	ErrSdWriteToReadOnly  = errors.New("dsi: write to read-only SD/MMC card")
	ErrUnknownI2CDevice   = errors.New("dsi: unknown I2C device id")
	ErrUnknownAesMode     = errors.New("dsi: unknown AES mode")
	ErrWifiConfigRejected = errors.New("dsi: Wi-Fi configuration rejected")
)

// StopReason identifies why RunFrame stopped running the console early.
type StopReason int

const (
	StopNone StopReason = iota
	StopExternal
	StopPowerOff
	StopGBAModeNotSupported
	StopBadExceptionRegion
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopExternal:
		return "external"
	case StopPowerOff:
		return "power-off"
	case StopGBAModeNotSupported:
		return "gba-mode-not-supported"
	case StopBadExceptionRegion:
		return "bad-exception-region"
	default:
		return "unknown"
	}
}
