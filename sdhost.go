package dsi

// SDHost implements one of the DSi's two SD/MMC host controllers (§4.4):
// the eMMC+TF-card host on ARM7, and the SDIO-Wi-Fi host. Both share the
// same register shape; only the attached MMCStorage (or, for SDIO, the
// Wi-Fi device's window) differs. Device-interface + register-dispatch
// pattern, the same shape used by the other attachable peripherals here.

const sdFifo16Depth = 16
const sdFifo32Depth = 4

// SD command/response flags (§4.4).
const (
	sdCmdResponseMask = 0x0003
	sdCmdDataPresent  = 1 << 3
	sdCmdRead         = 1 << 4
	sdCmdMultiBlock   = 1 << 5
	sdCmdAutoStop     = 1 << 10
)

// data32_irq bits that report FIFO32 fullness; set once a complete 32-bit
// word has been packed over from the 16-bit side (§4.4 "FIFO model").
const (
	dataCtl32Enable  = 1 << 1
	data32IRQEnable  = 1 << 1
	data32IRQFull    = 1 << 8
	data32IRQNonEmpty = 1 << 9
)

// SDIOFunc is the contract an SDIO card (the Wi-Fi chip) exposes to this
// host's CMD52 (byte I/O) and CMD53 (extended block/byte I/O) commands
// (§4.8 "Function 0"/"Function 1").
type SDIOFunc interface {
	SDIOReadByte(fn int, addr uint32) byte
	SDIOWriteByte(fn int, addr uint32, val byte)
}

type sdPortType int

const (
	sdPortEmmc sdPortType = iota
	sdPortSDIO
)

// SDHost is the register file + FIFO pump for one controller instance.
type SDHost struct {
	port sdPortType

	Cmd      uint16
	Port     uint16
	CmdParam uint32
	RespBuf  [8]uint16
	BlkCnt   uint16
	BlkLen16 uint16
	DataCtl  uint16
	DataCnt16 uint16
	Data32IRQ uint16
	Error    uint16
	IRQStat  uint16
	IRQMask  uint16
	ClkCtl   uint16

	fifo16     []uint16
	fifo32     []uint32
	blocksLeft uint32
	curBlock   uint32
	blockOff   int
	reading    bool
	cardInsertedLine bool
	nextIsACMD bool

	card MMCStorage
	sdio SDIOFunc

	irq  IRQController
	ndma *NDMAEngine
	log  Logger
}

func newSDHost(port sdPortType, irq IRQController, ndma *NDMAEngine, log Logger) *SDHost {
	h := &SDHost{port: port, irq: irq, ndma: ndma, log: log}
	h.Reset()
	return h
}

// Reset restores the controller to its power-on state (§3).
func (h *SDHost) Reset() {
	card, sdio := h.card, h.sdio
	irq, ndma, log, port := h.irq, h.ndma, h.log, h.port
	*h = SDHost{port: port, irq: irq, ndma: ndma, log: log, card: card, sdio: sdio}
	h.cardInsertedLine = card != nil || sdio != nil
}

// AttachCard plugs in (or ejects, with card==nil) the storage device this
// host talks to (§4.4 "Card attach/eject").
func (h *SDHost) AttachCard(card MMCStorage) {
	h.card = card
	h.cardInsertedLine = card != nil
}

// AttachSDIO plugs in (or ejects, with dev==nil) the SDIO function device
// the SDIO-mode host talks to via CMD52/CMD53 (§4.8).
func (h *SDHost) AttachSDIO(dev SDIOFunc) {
	h.sdio = dev
	h.cardInsertedLine = dev != nil
}

// WriteCmd handles a write to the SD command-port register, which starts
// issuing a command to the attached card (§4.4 "Command pipeline").
func (h *SDHost) WriteCmd(val uint16) {
	h.Cmd = val
	h.execute()
}

func (h *SDHost) execute() {
	if h.port == sdPortSDIO {
		h.executeSDIO()
		return
	}

	if h.card == nil {
		h.Error |= 1 << 0 // no-response-timeout style error bit
		h.IRQStat |= 1 << 0
		h.raiseIfEnabled()
		return
	}

	index := h.Cmd & 0x3F
	isACMD := h.nextIsACMD
	h.nextIsACMD = false
	if isACMD {
		h.executeACMD(index)
		h.IRQStat |= 1 << 2
		h.raiseIfEnabled()
		return
	}

	switch index {
	case 13: // SEND_STATUS
		h.RespBuf[0] = 0x0900
	case 16: // SET_BLOCKLEN — parameter carries the block length, always 512 here
		// no-op: fixed 512-byte blocks modeled directly.
	case 17, 18: // READ_SINGLE / READ_MULTIPLE
		h.reading = true
		h.beginTransfer(index == 18)
	case 24, 25: // WRITE_SINGLE / WRITE_MULTIPLE
		h.reading = false
		h.beginTransfer(index == 25)
	case 12: // STOP_TRANSMISSION
		h.blocksLeft = 0
	case 55: // APP_CMD — next command is an ACMD
		h.nextIsACMD = true
	default:
		// Bus/app/init commands (GO_IDLE, SEND_OP_COND, ALL_SEND_CID, ...)
		// complete immediately with a synthetic response; real card
		// identification state machine is out of scope for a host stub.
	}

	h.IRQStat |= 1 << 2 // response-end
	h.raiseIfEnabled()
}

// executeACMD dispatches the application-specific command CMD55 armed
// (§4.4 "Supported commands": ACMD 6/13/41/42/51).
func (h *SDHost) executeACMD(index uint16) {
	switch index {
	case 6: // SET_BUS_WIDTH — width switch not modeled, accepted as a no-op
	case 13: // SD_STATUS — no card-specific status tracked
		h.RespBuf[0] = 0
	case 41: // SD_SEND_OP_COND — report the card as busy-cleared and ready
		h.RespBuf[0] = 0xFF80
		h.RespBuf[1] = 0x8000
	case 42: // SET_CLR_CARD_DETECT — pull-up control, not modeled
	case 51: // SEND_SCR — no SCR register content tracked
		h.RespBuf[0], h.RespBuf[1] = 0, 0
	default:
		h.log.Warnf("sdhost: unhandled ACMD%d", index)
	}
}

// executeSDIO dispatches CMD52 (byte I/O) and CMD53 (extended block/byte
// I/O) against the attached SDIO function device (§4.8).
func (h *SDHost) executeSDIO() {
	if h.sdio == nil {
		h.Error |= 1 << 0
		h.IRQStat |= 1 << 0
		h.raiseIfEnabled()
		return
	}

	switch h.Cmd & 0x3F {
	case 52:
		h.sdioByteIO()
	case 53:
		h.sdioExtendedIO()
	default:
		// Bus-init commands (CMD0/3/5/7) complete immediately with a
		// synthetic response; SDIO enumeration is out of scope.
	}

	h.IRQStat |= 1 << 2
	h.raiseIfEnabled()
}

// sdioByteIO services CMD52: a single byte read or write at one function
// register address, decoded from CmdParam the way the real SDIO argument
// layout packs it (R/W flag, function number, address, write data).
func (h *SDHost) sdioByteIO() {
	rw := h.CmdParam&(1<<31) != 0
	fn := int((h.CmdParam >> 28) & 0x7)
	addr := (h.CmdParam >> 9) & 0x1FFFF
	data := byte(h.CmdParam)

	if rw {
		h.sdio.SDIOWriteByte(fn, addr, data)
		h.RespBuf[0] = uint16(data)
		return
	}
	h.RespBuf[0] = uint16(h.sdio.SDIOReadByte(fn, addr))
}

// sdioExtendedIO services CMD53: a multi-byte block/byte transfer staged
// through the same FIFO16 registers the eMMC path uses, so the host's
// FIFO read/write code is shared across both SD hosts.
func (h *SDHost) sdioExtendedIO() {
	rw := h.CmdParam&(1<<31) != 0
	fn := int((h.CmdParam >> 28) & 0x7)
	incrAddr := h.CmdParam&(1<<26) != 0
	addr := (h.CmdParam >> 9) & 0x1FFFF
	count := h.CmdParam & 0x1FF
	if count == 0 {
		count = 512
	}

	if rw {
		data := make([]byte, 0, len(h.fifo16)*2)
		for _, w := range h.fifo16 {
			data = append(data, byte(w), byte(w>>8))
		}
		h.fifo16 = h.fifo16[:0]
		a := addr
		for i := uint32(0); i < count && int(i) < len(data); i++ {
			h.sdio.SDIOWriteByte(fn, a, data[i])
			if incrAddr {
				a++
			}
		}
		return
	}

	h.fifo16 = h.fifo16[:0]
	a := addr
	for i := uint32(0); i+1 < count; i += 2 {
		lo := h.sdio.SDIOReadByte(fn, a)
		if incrAddr {
			a++
		}
		hi := h.sdio.SDIOReadByte(fn, a)
		if incrAddr {
			a++
		}
		h.fifo16 = append(h.fifo16, uint16(lo)|uint16(hi)<<8)
	}
	h.IRQStat |= 1 << 1 // RX-ready
	if h.ndma != nil {
		h.ndma.Check(ARM7, h.ndmaStartMode())
	}
}

func (h *SDHost) beginTransfer(multi bool) {
	h.curBlock = h.CmdParam
	if multi {
		h.blocksLeft = uint32(h.BlkCnt)
		if h.blocksLeft == 0 {
			h.blocksLeft = 1
		}
	} else {
		h.blocksLeft = 1
	}
	h.blockOff = 0
	if h.reading {
		h.fillFifoFromCard()
	}
}

func (h *SDHost) fillFifoFromCard() {
	if h.blocksLeft == 0 {
		return
	}
	var buf [512]byte
	if err := h.card.ReadBlock(h.curBlock, buf[:]); err != nil {
		h.Error |= 1 << 1
		h.IRQStat |= 1 << 0
		h.raiseIfEnabled()
		return
	}
	h.fifo16 = h.fifo16[:0]
	for i := 0; i < 512; i += 2 {
		h.fifo16 = append(h.fifo16, uint16(buf[i])|uint16(buf[i+1])<<8)
	}
	if h.dataMode() == 32 {
		h.packFifo16To32()
	}
	h.IRQStat |= 1 << 1 // RX-ready
	h.raiseIfEnabled()
	if h.ndma != nil {
		h.ndma.Check(ARM7, h.ndmaStartMode())
	}
}

func (h *SDHost) ndmaStartMode() int {
	if h.port == sdPortEmmc {
		return 0x05
	}
	return 0x06
}

// ReadFifo16 services one FIFO16 register read (§4.4).
func (h *SDHost) ReadFifo16() uint16 {
	if len(h.fifo16) == 0 {
		return 0
	}
	v := h.fifo16[0]
	h.fifo16 = h.fifo16[1:]
	if len(h.fifo16) == 0 {
		h.advanceBlock()
	}
	return v
}

// WriteFifo16 services one FIFO16 register write during a write command.
// The SDIO host's CMD53 path drains fifo16 itself once the command
// completes, rather than on a 256-word block boundary, so the eMMC-only
// auto-flush is gated to that port.
func (h *SDHost) WriteFifo16(val uint16) {
	h.fifo16 = append(h.fifo16, val)
	if h.port == sdPortEmmc && len(h.fifo16) == 256 {
		h.flushFifoToCard()
	}
}

// dataMode reports whether the 16-bit or 32-bit FIFO side is active:
// 32-bit mode requires both data_ctl bit 1 and data32_irq bit 1 set
// (§4.4 "FIFO model").
func (h *SDHost) dataMode() int {
	if h.DataCtl&dataCtl32Enable != 0 && h.Data32IRQ&data32IRQEnable != 0 {
		return 32
	}
	return 16
}

// packFifo16To32 pulls a completed 16-bit-side block into the 32-bit
// FIFO two words at a time and raises the FIFO32 full/non-empty status
// bits (§4.4 "FIFO model").
func (h *SDHost) packFifo16To32() {
	h.fifo32 = h.fifo32[:0]
	for i := 0; i+1 < len(h.fifo16); i += 2 {
		h.fifo32 = append(h.fifo32, uint32(h.fifo16[i])|uint32(h.fifo16[i+1])<<16)
	}
	h.Data32IRQ |= data32IRQFull | data32IRQNonEmpty
}

// ReadFifo32 services one FIFO32 register read.
func (h *SDHost) ReadFifo32() uint32 {
	if len(h.fifo32) == 0 {
		return 0
	}
	v := h.fifo32[0]
	h.fifo32 = h.fifo32[1:]
	if len(h.fifo32) == 0 {
		h.Data32IRQ &^= data32IRQFull | data32IRQNonEmpty
	}
	return v
}

// WriteFifo32 services one FIFO32 register write; once a complete block
// accumulates it is unpacked back to the 16-bit side and flushed to the
// card exactly as a 16-bit-side write would be (§4.4 "FIFO model").
func (h *SDHost) WriteFifo32(val uint32) {
	h.fifo32 = append(h.fifo32, val)
	h.Data32IRQ |= data32IRQNonEmpty
	if len(h.fifo32) == 512/4 { // 128 words = one 512-byte block
		h.Data32IRQ |= data32IRQFull
		h.unpackFifo32To16()
		if h.port == sdPortEmmc {
			h.flushFifoToCard()
		}
		h.Data32IRQ &^= data32IRQFull | data32IRQNonEmpty
	}
}

func (h *SDHost) unpackFifo32To16() {
	h.fifo16 = h.fifo16[:0]
	for _, v := range h.fifo32 {
		h.fifo16 = append(h.fifo16, uint16(v), uint16(v>>16))
	}
	h.fifo32 = h.fifo32[:0]
}

func (h *SDHost) flushFifoToCard() {
	var buf [512]byte
	for i, w := range h.fifo16 {
		buf[i*2] = byte(w)
		buf[i*2+1] = byte(w >> 8)
	}
	h.fifo16 = h.fifo16[:0]
	if err := h.card.WriteBlock(h.curBlock, buf[:]); err != nil {
		h.Error |= 1 << 1
		h.IRQStat |= 1 << 0
	}
	h.advanceBlock()
}

func (h *SDHost) advanceBlock() {
	if h.blocksLeft == 0 {
		return
	}
	h.blocksLeft--
	h.curBlock++
	if h.blocksLeft == 0 {
		h.IRQStat |= 1 << 3 // transfer-complete / auto-stop
		h.raiseIfEnabled()
		return
	}
	if h.reading {
		h.fillFifoFromCard()
	}
}

func (h *SDHost) raiseIfEnabled() {
	if h.IRQStat&h.IRQMask == 0 {
		return
	}
	line := IRQ2DSiSDMMC
	if h.port == sdPortSDIO {
		line = IRQ2DSiSDIO
	}
	h.irq.RaiseIRQ(ARM7, line)
}
