package dsi

import "testing"

func TestTSC_SetPenDownTogglesFlag(t *testing.T) {
	tsc := newTSC(&fakeIRQ{}, nopLogger{})
	tsc.SetPenDown(true)
	if tsc.PenDownFlags&1 == 0 {
		t.Error("SetPenDown(true) should set bit 0 of PenDownFlags")
	}
	tsc.SetPenDown(false)
	if tsc.PenDownFlags&1 != 0 {
		t.Error("SetPenDown(false) should clear bit 0 of PenDownFlags")
	}
}

func TestTSC_PushMicSampleRaisesIRQAtThreshold(t *testing.T) {
	irq := &fakeIRQ{}
	tsc := newTSC(irq, nopLogger{})
	tsc.MicBufferCnt = (1 << 15) | 4 // IRQ-enabled, threshold of 4 samples

	for i := 0; i < 3; i++ {
		tsc.PushMicSample(int16(i))
	}
	if len(irq.raised) != 0 {
		t.Fatal("IRQ should not fire before the buffer threshold is reached")
	}

	tsc.PushMicSample(42)
	if len(irq.raised) == 0 {
		t.Error("reaching the threshold with IRQ enabled should raise an interrupt")
	}
	if len(tsc.micSamples) != 0 {
		t.Error("the ring buffer should reset once the threshold fires")
	}
}

func TestTSC_PushMicSampleNoIRQWhenDisabled(t *testing.T) {
	irq := &fakeIRQ{}
	tsc := newTSC(irq, nopLogger{})
	tsc.MicBufferCnt = 2 // threshold set, IRQ-enable bit clear

	tsc.PushMicSample(1)
	tsc.PushMicSample(2)
	if len(irq.raised) != 0 {
		t.Error("threshold reached with IRQ-enable bit clear should not raise an interrupt")
	}
}
