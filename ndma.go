package dsi

// NDMA implements the DSi's second DMA engine: eight channels (four per
// CPU), block/subblock timing, fill mode, and the 0x00..0x1F start-mode
// table (§3, §4.2, glossary). Modeled as a channel array plus a
// control-register-bit decode, the same shape used throughout the other
// DSi chip register files.

// NDMA start modes (§4.2). Values above 0x10 are clamped to 0x10 by the
// hardware, a concrete edge-case rule for out-of-range encodings.
const (
	NdmaStartImmediate = 0x10
	NdmaStartGXFifo    = 0x0A
	NdmaStartCamera    = 0x0B
	NdmaStartAESInput  = 0x2A
	NdmaStartAESOutput = 0x2B
)

type ndmaIncMode int

const (
	incPlus1 ndmaIncMode = iota
	incMinus1
	incFixed
	incReservedOrFill
)

type ndmaRunState int

const (
	ndmaIdle ndmaRunState = iota
	ndmaBurstStart
	ndmaBurst
)

// NDMAChannel is one of the eight channels (§3).
type NDMAChannel struct {
	CPU CPU
	Num int // 0..3 within the owning CPU

	Src, Dst      uint32
	TotalLen      uint32
	BlockLen      uint32
	SubblockTimer uint32
	FillData      uint32
	Cnt           uint32

	StartMode int

	CurSrc, CurDst uint32
	RemCount       uint32
	IterCount      uint32
	TotalRem       uint32

	SrcInc, DstInc ndmaIncMode

	Running    ndmaRunState
	InProgress bool
	Stalled    bool
}

// NDMAEngine owns all eight channels and dispatches triggers from
// check_ndmas-style calls (§4.2).
type NDMAEngine struct {
	Channels [8]NDMAChannel

	bus  Bus
	irq  IRQController
	jit  JITInvalidator
	log  Logger
}

func newNDMAEngine(bus Bus, irq IRQController, jit JITInvalidator, log Logger) *NDMAEngine {
	e := &NDMAEngine{bus: bus, irq: irq, jit: jit, log: log}
	e.Reset()
	return e
}

// Reset clears every channel to its power-on state (§3).
func (e *NDMAEngine) Reset() {
	for i := range e.Channels {
		cpu := ARM9
		if i >= 4 {
			cpu = ARM7
		}
		e.Channels[i] = NDMAChannel{CPU: cpu, Num: i % 4}
	}
}

func decodeInc(bits uint32, isSrc bool) ndmaIncMode {
	switch bits & 0x3 {
	case 0:
		return incPlus1
	case 1:
		return incMinus1
	case 2:
		return incFixed
	default:
		if isSrc {
			return incReservedOrFill // fill mode for src
		}
		return incReservedOrFill // reserved for dst: no increment is applied
	}
}

// WriteCnt handles a write to a channel's CNT register, including the
// 0->1 start-bit transition (§4.2 "Transfer kernel").
func (e *NDMAEngine) WriteCnt(ch *NDMAChannel, val uint32) {
	wasRunning := ch.Cnt&(1<<31) != 0
	nowRunning := val&(1<<31) != 0
	ch.Cnt = val
	ch.StartMode = int((val >> 24) & 0x1F)
	if ch.StartMode > 0x10 {
		ch.StartMode = 0x10
	}
	ch.SrcInc = decodeInc((val>>12)&0x3, true)
	ch.DstInc = decodeInc((val>>10)&0x3, false)

	if !wasRunning && nowRunning {
		e.arm(ch)
	}
}

func (e *NDMAEngine) arm(ch *NDMAChannel) {
	ch.CurSrc = ch.Src
	ch.CurDst = ch.Dst
	ch.TotalRem = ch.TotalLen
	ch.InProgress = true

	switch ch.StartMode {
	case NdmaStartImmediate:
		e.start(ch)
	case NdmaStartGXFifo:
		// GPU-3D pokes the channel when its FIFO needs data; no-op here,
		// Check(ch, NdmaStartGXFifo) drives it.
	default:
		if !isKnownStartMode(ch.StartMode) {
			e.log.Warnf("NDMA ch%d: unimplemented start-mode %#02x, channel stays armed", channelIndex(ch), ch.StartMode)
		}
	}
}

func channelIndex(ch *NDMAChannel) int {
	if ch.CPU == ARM7 {
		return 4 + ch.Num
	}
	return ch.Num
}

func isKnownStartMode(mode int) bool {
	switch {
	case mode <= 0x03, mode == 0x05, mode >= 0x0C && mode <= 0x0F:
		return true
	case mode == NdmaStartImmediate, mode == NdmaStartGXFifo, mode == NdmaStartCamera:
		return true
	}
	return false
}

// Check triggers every channel whose start_mode matches `mode` — the
// check_ndmas(cpu, mode) entry point §4.2 describes (VBlank, HBlank,
// scanline, camera, AES FIFOs, timers, ...).
func (e *NDMAEngine) Check(cpu CPU, mode int) {
	for i := range e.Channels {
		ch := &e.Channels[i]
		if ch.CPU != cpu || !ch.InProgress {
			continue
		}
		if ch.StartMode == mode {
			e.start(ch)
		}
	}
}

// start runs one burst of the channel to completion (or to the GX-FIFO
// iteration cap), then applies end-of-transfer handling (§4.2).
func (e *NDMAEngine) start(ch *NDMAChannel) {
	if ch.Stalled {
		return
	}
	ch.Running = ndmaBurst

	iterCap := ch.TotalRem
	if ch.StartMode == NdmaStartGXFifo && iterCap > 112 {
		iterCap = 112
	}

	fillMode := ch.SrcInc == incReservedOrFill
	for i := uint32(0); i < iterCap; i++ {
		if ch.Stalled {
			break
		}
		var word uint32
		if fillMode {
			word = ch.FillData
		} else {
			word = e.bus.Read32(ch.CPU, ch.CurSrc)
		}
		e.bus.Write32(ch.CPU, ch.CurDst, word)
		e.jit.InvalidateRange(ch.CPU, "ndma-dst", ch.CurDst)

		switch ch.SrcInc {
		case incPlus1:
			ch.CurSrc += 4
		case incMinus1:
			ch.CurSrc -= 4
		}
		switch ch.DstInc {
		case incPlus1:
			ch.CurDst += 4
		case incMinus1:
			ch.CurDst -= 4
		}

		ch.RemCount++
		ch.TotalRem--
	}

	if ch.TotalRem == 0 {
		e.finish(ch)
	} else {
		ch.Running = ndmaIdle
	}
}

// finish applies end-of-transfer semantics: unless the channel repeats,
// clear the start bit and, if Cnt bit 30 (IRQ enable) is set, raise the
// completion IRQ (§4.2 "End-of-transfer").
func (e *NDMAEngine) finish(ch *NDMAChannel) {
	ch.Running = ndmaIdle
	if ch.StartMode == NdmaStartImmediate || ch.Cnt&(1<<29) == 0 {
		ch.Cnt &^= 1 << 31
		ch.InProgress = false
		if ch.Cnt&(1<<30) != 0 {
			e.irq.RaiseIRQ(ch.CPU, IRQDSiNDMA0+IRQLine(ch.Num))
		}
	}
	// else: stays armed, InProgress remains true, waiting for next trigger.
}

// Stall flips the stall flag on every running channel (raised when the
// GX FIFO is full); the kernel breaks out after the current word (§4.2).
func (e *NDMAEngine) Stall(stalled bool) {
	for i := range e.Channels {
		if e.Channels[i].Running == ndmaBurst {
			e.Channels[i].Stalled = stalled
		}
	}
}
