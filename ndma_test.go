package dsi

import "testing"

type fakeBus struct {
	mem map[uint32]uint32
}

func newFakeBus() *fakeBus { return &fakeBus{mem: make(map[uint32]uint32)} }

func (b *fakeBus) Read8(CPU, uint32) uint8   { return 0 }
func (b *fakeBus) Read16(CPU, uint32) uint16 { return 0 }
func (b *fakeBus) Read32(cpu CPU, addr uint32) uint32 {
	return b.mem[addr]
}
func (b *fakeBus) Write8(CPU, uint32, uint8)   {}
func (b *fakeBus) Write16(CPU, uint32, uint16) {}
func (b *fakeBus) Write32(cpu CPU, addr uint32, v uint32) {
	b.mem[addr] = v
}

type fakeIRQ struct {
	raised []IRQLine
}

func (f *fakeIRQ) RaiseIRQ(cpu CPU, line IRQLine) {
	f.raised = append(f.raised, line)
}

func TestNDMA_StartModeClampedTo0x10(t *testing.T) {
	bus, irq, jit := newFakeBus(), &fakeIRQ{}, &fakeJIT{}
	e := newNDMAEngine(bus, irq, jit, nopLogger{})

	ch := &e.Channels[0]
	e.WriteCnt(ch, 0x1F000000) // start-mode field = 0x1F, above 0x10
	if ch.StartMode != NdmaStartImmediate {
		t.Errorf("StartMode = %#02x, want clamped to %#02x", ch.StartMode, NdmaStartImmediate)
	}
}

func TestNDMA_ImmediateTransferCompletesAndRaisesIRQ(t *testing.T) {
	bus, irq, jit := newFakeBus(), &fakeIRQ{}, &fakeJIT{}
	e := newNDMAEngine(bus, irq, jit, nopLogger{})

	bus.mem[0x02000000] = 0xDEADBEEF
	ch := &e.Channels[0]
	ch.Src = 0x02000000
	ch.Dst = 0x02001000
	ch.TotalLen = 1

	e.WriteCnt(ch, 0xD0000000|uint32(NdmaStartImmediate)<<24) // start + IRQ enable

	if bus.mem[0x02001000] != 0xDEADBEEF {
		t.Errorf("destination word = %#08x, want 0xDEADBEEF", bus.mem[0x02001000])
	}
	if ch.Cnt&(1<<31) != 0 {
		t.Error("start bit should clear once the transfer completes")
	}
	if len(irq.raised) != 1 || irq.raised[0] != IRQDSiNDMA0 {
		t.Errorf("expected exactly one IRQDSiNDMA0, got %v", irq.raised)
	}
}

func TestNDMA_FillModeUsesFillData(t *testing.T) {
	bus, irq, jit := newFakeBus(), &fakeIRQ{}, &fakeJIT{}
	e := newNDMAEngine(bus, irq, jit, nopLogger{})

	ch := &e.Channels[0]
	ch.Dst = 0x02001000
	ch.TotalLen = 1
	ch.FillData = 0x12345678

	// src-increment bits 0b11 select fill mode (incReservedOrFill).
	e.WriteCnt(ch, 0x90000000|uint32(NdmaStartImmediate)<<24|(0x3<<12))

	if bus.mem[0x02001000] != 0x12345678 {
		t.Errorf("fill-mode destination = %#08x, want FillData", bus.mem[0x02001000])
	}
}

func TestNDMA_GXFifoCapsAt112Words(t *testing.T) {
	bus, irq, jit := newFakeBus(), &fakeIRQ{}, &fakeJIT{}
	e := newNDMAEngine(bus, irq, jit, nopLogger{})

	ch := &e.Channels[0]
	ch.Dst = 0x02001000
	ch.TotalLen = 500
	ch.Cnt = uint32(NdmaStartGXFifo) << 24
	ch.StartMode = NdmaStartGXFifo
	ch.CurSrc, ch.CurDst, ch.TotalRem = ch.Src, ch.Dst, ch.TotalLen
	ch.InProgress = true

	e.start(ch)

	if ch.TotalRem != 500-112 {
		t.Errorf("TotalRem after one GX-FIFO burst = %d, want %d", ch.TotalRem, 500-112)
	}
}
