package dsi

// CaptureModule is the DSi's camera DMA/format unit: it pulls YUYV
// scanlines from whichever camera is selected, applies the crop window,
// converts to RGB555 (or passes YUV through) and stages them for the
// ARM9/ARM7 to fetch one scanline at a time via NDMA (§4.7). Structured
// like a scanline-oriented video chip's per-line render-and-IRQ cadence.

const (
	captureFormatRGB = 0
	captureFormatYUV = 1

	// captureOverrunBit is Cnt bit 4, set whenever a scanline's pixel count
	// had to be clamped to the staging buffer's capacity (§4.7).
	captureOverrunBit = 1 << 4

	// captureMaxLineWords is the staging buffer's per-scanline capacity in
	// 32-bit (two-pixel) words (§4.7 "Scanline DMA").
	captureMaxLineWords = 256

	// captureYUVCoeffV2R, captureYUVCoeffV2G, captureYUVCoeffU2G and
	// captureYUVCoeffU2B are the fixed-point YCbCr->RGB coefficients the
	// capture hardware applies, each pre-scaled by 1<<16 (§4.7 "YUV422 to
	// RGB555").
	captureYUVCoeffV2R = 91881
	captureYUVCoeffV2G = 46793
	captureYUVCoeffU2G = 22544
	captureYUVCoeffU2B = 116129
)

// CaptureModule owns the crop/format registers and the per-frame line
// cursor.
type CaptureModule struct {
	Cnt                            uint32
	CropX1, CropY1, CropX2, CropY2 uint16

	activeCamera   int
	curLine        int
	lineBuf        []uint16
	bufferNumLines int

	platform Platform
	irq      IRQController
	ndma     *NDMAEngine
	log      Logger
}

func newCaptureModule(platform Platform, irq IRQController, ndma *NDMAEngine, log Logger) *CaptureModule {
	return &CaptureModule{platform: platform, irq: irq, ndma: ndma, log: log}
}

// Reset clears the capture state machine (§3).
func (m *CaptureModule) Reset() {
	m.Cnt = 0
	m.CropX1, m.CropY1, m.CropX2, m.CropY2 = 0, 0, 0, 0
	m.curLine = 0
	m.lineBuf = nil
	m.bufferNumLines = 0
}

func (m *CaptureModule) enabled() bool { return m.Cnt&(1<<31) != 0 }
func (m *CaptureModule) format() int {
	if m.Cnt&(1<<30) != 0 {
		return captureFormatYUV
	}
	return captureFormatRGB
}

// WriteCnt handles the 0->1 transition that (re)starts frame capture.
func (m *CaptureModule) WriteCnt(val uint32) {
	wasEnabled := m.enabled()
	m.Cnt = val
	if !wasEnabled && m.enabled() {
		m.curLine = int(m.CropY1)
		m.lineBuf = m.lineBuf[:0]
		m.bufferNumLines = 0
	}
}

// yuyvToRGB555 converts one YCbCr sample pair to the hardware's BGR555
// output word, with bit 15 set to mark the pixel present (§4.7 "YUV422 to
// RGB555").
func yuyvToRGB555(y, u, v byte) uint16 {
	cb := int(u) - 128
	cr := int(v) - 128
	r := clamp8(int(y) + (cr*captureYUVCoeffV2R)>>16)
	g := clamp8(int(y) - (cr*captureYUVCoeffV2G)>>16 - (cb*captureYUVCoeffU2G)>>16)
	b := clamp8(int(y) + (cb*captureYUVCoeffU2B)>>16)
	return uint16(r>>3) | uint16(g>>3)<<5 | uint16(b>>3)<<10 | 0x8000
}

func clamp8(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// captureScanlineDelayCycles is the number of ARM7 cycles the current
// scanline's transfer is modeled to take; not authoritative hardware
// timing (§9 open question — kept as a placeholder constant).
func captureScanlineDelayCycles(words int) int64 {
	return int64(words*4 + 16)
}

// Tick pulls one scanline from the platform camera source, converts it
// through the crop window, and stages it via NDMA (§4.7 "Scanline DMA").
func (m *CaptureModule) Tick(sched Scheduler) {
	if !m.enabled() {
		return
	}
	if m.curLine > int(m.CropY2) {
		m.curLine = int(m.CropY1)
		m.Cnt &^= 1 << 31
		m.irq.RaiseIRQ(ARM7, IRQ2DSiCamera)
		return
	}

	yuyv, w, _, ok := m.platform.CameraFrame(m.activeCamera)
	if !ok {
		m.curLine++
		return
	}

	width := int(m.CropX2) - int(m.CropX1)
	if width <= 0 || width > w {
		width = w
	}
	words := width / 2
	if words > captureMaxLineWords {
		words = captureMaxLineWords
		width = words * 2
		m.Cnt |= captureOverrunBit
	}

	rowOff := m.curLine * w * 2
	produced := 0
	for x := 0; x < width; x += 2 {
		base := rowOff + (int(m.CropX1)+x)*2
		if base+3 >= len(yuyv) {
			break
		}
		y0, u, y1, v := yuyv[base], yuyv[base+1], yuyv[base+2], yuyv[base+3]
		if m.format() == captureFormatYUV {
			m.lineBuf = append(m.lineBuf, uint16(y0)|uint16(u)<<8, uint16(y1)|uint16(v)<<8)
		} else {
			m.lineBuf = append(m.lineBuf, yuyvToRGB555(y0, u, v), yuyvToRGB555(y1, u, v))
		}
		produced++
	}

	// Cnt[3:0] sets how many scanlines accumulate in the staging buffer
	// before NDMA is kicked and the buffer resets; short of that, the
	// buffer keeps growing and only the next scanline is scheduled (§4.7
	// "Scanline DMA").
	numscan := int(m.Cnt & 0x0F)
	if m.bufferNumLines >= numscan {
		m.lineBuf = m.lineBuf[:0]
		m.bufferNumLines = 0
		if m.ndma != nil {
			m.ndma.Check(ARM7, NdmaStartCamera)
		}
	} else {
		m.bufferNumLines++
	}

	if sched != nil {
		sched.Schedule(EventCameraTransfer, false, captureScanlineDelayCycles(produced), 0)
	}
	m.curLine++
}

// ReadLineWord returns one 32-bit word of the currently staged scanline,
// the unit NDMA actually transfers in camera mode.
func (m *CaptureModule) ReadLineWord(idx int) uint32 {
	if idx*2+1 >= len(m.lineBuf) {
		return 0
	}
	return uint32(m.lineBuf[idx*2]) | uint32(m.lineBuf[idx*2+1])<<16
}
