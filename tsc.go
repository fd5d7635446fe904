package dsi

// TSC is the DSi-mode touchscreen/microphone controller's extended
// register bank layered over the base NDS SPI protocol (§4.9). Only the
// DSi-added register surface is modeled here; SPI framing/chip-select
// itself is the NDS base's concern (§1 out of scope).
type TSC struct {
	MicBufferCnt   uint16
	PenDownFlags   uint16
	RTCCal         [4]byte

	micSamples []int16

	irq IRQController
	log Logger
}

func newTSC(irq IRQController, log Logger) *TSC {
	t := &TSC{irq: irq, log: log}
	t.Reset()
	return t
}

// Reset clears the register bank (§3).
func (t *TSC) Reset() {
	t.MicBufferCnt = 0
	t.PenDownFlags = 0
	t.RTCCal = [4]byte{}
	t.micSamples = nil
}

// SetPenDown updates the pen-down status bit the DSi-mode register bank
// exposes in addition to the legacy NDS SPI pen IRQ line (§4.9).
func (t *TSC) SetPenDown(down bool) {
	if down {
		t.PenDownFlags |= 1
	} else {
		t.PenDownFlags &^= 1
	}
}

// PushMicSample appends one 16-bit PCM sample to the DSi-mode microphone
// ring buffer, raising the buffer-full IRQ once MicBufferCnt's threshold
// is reached (§4.9 "Microphone buffering").
func (t *TSC) PushMicSample(sample int16) {
	t.micSamples = append(t.micSamples, sample)
	threshold := int(t.MicBufferCnt & 0x3FFF)
	if threshold > 0 && len(t.micSamples) >= threshold {
		t.micSamples = t.micSamples[:0]
		if t.MicBufferCnt&(1<<15) != 0 {
			t.irq.RaiseIRQ(ARM7, IRQ2DSiI2C) // shared mic/I2C IRQ line, §6 map
		}
	}
}
