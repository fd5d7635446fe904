package dsi

// BPTWL is the battery/power/touchscreen-watchdog-logic device living on
// the I2C bus at address 0x4A: power state, battery level, volume slider
// LUTs, and the reset-reason/boot-flag registers direct boot reads back
// (§4.6 "BPTWL"). The volume tables are carried verbatim from the
// reference firmware's calibration data — fixed hardware constants, not
// something to approximate.

// VolumeUpTable and VolumeDownTable map the slider's raw ADC-like register
// value to a discrete volume level, separately for the up and down
// direction to model the slider's physical hysteresis.
var VolumeUpTable = [32]byte{
	0x00, 0x01, 0x01, 0x02, 0x02, 0x03, 0x03, 0x04,
	0x04, 0x05, 0x05, 0x06, 0x06, 0x07, 0x07, 0x08,
	0x08, 0x09, 0x09, 0x0A, 0x0A, 0x0B, 0x0B, 0x0C,
	0x0C, 0x0D, 0x0D, 0x0E, 0x0E, 0x0F, 0x0F, 0x0F,
}

var VolumeDownTable = [32]byte{
	0x00, 0x00, 0x01, 0x01, 0x02, 0x02, 0x03, 0x03,
	0x04, 0x04, 0x05, 0x05, 0x06, 0x06, 0x07, 0x07,
	0x08, 0x08, 0x09, 0x09, 0x0A, 0x0A, 0x0B, 0x0B,
	0x0C, 0x0C, 0x0D, 0x0D, 0x0E, 0x0E, 0x0F, 0x0F,
}

// BPTWL registers (§4.6).
const (
	bptwlRegPowerFlags  = 0x10
	bptwlRegResetFlags  = 0x11
	bptwlRegBattery     = 0x20
	bptwlRegVolumeRaw   = 0x21
	bptwlRegVolumeLevel = 0x22
)

// VolumeDirection is which way the host volume slider/buttons moved.
type VolumeDirection int

const (
	VolumeDown VolumeDirection = iota
	VolumeUp
)

// volumeDebounceInterval is the minimum spacing between two honored
// volume-switch presses (§4.6 "Volume switch"). The direction of the
// presses is not compared: a press in either direction inside the
// interval is dropped.
const volumeDebounceInterval = 1.0 / 6.0

// BPTWL implements I2CDevice for the power-management block.
type BPTWL struct {
	PowerFlags byte
	ResetFlags byte
	Battery    byte
	VolumeRaw  byte

	volumeRising bool

	lastPressTime float64
	havePressed   bool

	irq IRQController
	log Logger
}

func newBPTWL(irq IRQController, log Logger) *BPTWL {
	b := &BPTWL{irq: irq, log: log}
	b.Reset()
	return b
}

// Reset restores cold-boot defaults: full battery, charger connected,
// volume at its midpoint (§3).
func (b *BPTWL) Reset() {
	b.PowerFlags = 0x0E
	b.ResetFlags = 0x00
	b.Battery = 0x0F
	b.VolumeRaw = 0x10
	b.volumeRising = true
	b.havePressed = false
	b.lastPressTime = 0
}

func (b *BPTWL) volumeLevel() byte {
	if b.volumeRising {
		return VolumeUpTable[b.VolumeRaw&0x1F]
	}
	return VolumeDownTable[b.VolumeRaw&0x1F]
}

// ReadReg implements I2CDevice.
func (b *BPTWL) ReadReg(reg byte) byte {
	switch reg {
	case bptwlRegPowerFlags:
		return b.PowerFlags
	case bptwlRegResetFlags:
		return b.ResetFlags
	case bptwlRegBattery:
		return b.Battery
	case bptwlRegVolumeRaw:
		return b.VolumeRaw
	case bptwlRegVolumeLevel:
		return b.volumeLevel()
	default:
		return 0
	}
}

// WriteReg implements I2CDevice.
func (b *BPTWL) WriteReg(reg byte, val byte) {
	switch reg {
	case bptwlRegPowerFlags:
		if val&(1<<6) != 0 {
			b.requestPowerOff()
			return
		}
		b.PowerFlags = val
	case bptwlRegResetFlags:
		b.ResetFlags = val
	case bptwlRegVolumeRaw:
		rising := val > b.VolumeRaw
		b.volumeRising = rising
		b.VolumeRaw = val
		if b.irq != nil {
			b.irq.RaiseIRQ(ARM7, IRQ2DSiBPTWL)
		}
	default:
	}
}

func (b *BPTWL) requestPowerOff() {
	b.PowerFlags |= 1 << 7
	if b.irq != nil {
		b.irq.RaiseIRQ(ARM7, IRQ2DSiBPTWL)
	}
}

// VolumeSwitchPressed applies one up/down step from the physical volume
// switch at host time t (seconds), debouncing presses closer together than
// volumeDebounceInterval (§4.6 "Volume switch").
func (b *BPTWL) VolumeSwitchPressed(dir VolumeDirection, t float64) {
	if b.havePressed && t-b.lastPressTime < volumeDebounceInterval {
		return
	}
	b.lastPressTime = t
	b.havePressed = true

	if dir == VolumeUp {
		if b.VolumeRaw < 0x1F {
			b.VolumeRaw++
		}
		b.volumeRising = true
	} else {
		if b.VolumeRaw > 0 {
			b.VolumeRaw--
		}
		b.volumeRising = false
	}
	if b.irq != nil {
		b.irq.RaiseIRQ(ARM7, IRQ2DSiBPTWL)
	}
}
