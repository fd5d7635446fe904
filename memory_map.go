package dsi

// Register address ranges for the DSi-only I/O block (§6). Rather than one
// flat page table, the decoder below is a fixed switch over the known DSi
// ranges, falling through to the Bus collaborator for everything else.
const (
	ioSCFGBase   = 0x04004000
	ioSCFGMC     = 0x04004010
	ioMBKBase    = 0x04004040
	ioMBKEnd     = 0x04004063
	ioNDMABase   = 0x04004100
	ioNDMAEnd    = 0x04004170
	ioCameraBase = 0x04004200
	ioCameraEnd  = 0x04004217
	ioDSPBase    = 0x04004300
	ioDSPEnd     = 0x040043FC
	ioAESBase    = 0x04004400
	ioAESEnd     = 0x040044FF
	ioI2CBase    = 0x04004500
	ioI2CEnd     = 0x04004501
	ioSDMMCBase  = 0x04004800
	ioSDMMCEnd   = 0x040049FF
	ioSDIOBase   = 0x04004A00
	ioSDIOEnd    = 0x04004BFF
	ioGPIOBase   = 0x04004C00
	ioGPIOEnd    = 0x04004C05
	ioConsoleIDMirrorBase = 0x04004D00
	ioConsoleIDMirrorEnd  = 0x04004D08

	nwramRegionBase = 0x03000000
	nwramRegionEnd  = 0x04000000
)

// Read8 / Write8 implement the top-level fixed decode described in §4.1:
// NWRAM first (gated by SCFG_EXT bit 25), then the DSi-only I/O block
// (gated by SCFG access-enable above 0x0400_4xxx), then fall through to
// the NDS base bus.
func (c *DSi) Read8(cpu CPU, addr uint32) uint8 {
	if addr >= nwramRegionBase && addr < nwramRegionEnd {
		if c.SCFG.NWRAMVisible(cpu) {
			if v, ok := c.NWRAM.Read(cpu, addr); ok {
				return v
			}
		}
	}
	if addr >= ioSCFGBase && addr < ioConsoleIDMirrorEnd {
		if v, ok := c.readIO8(cpu, addr); ok {
			return v
		}
	}
	return c.bus.Read8(cpu, addr)
}

func (c *DSi) Write8(cpu CPU, addr uint32, val uint8) {
	if addr >= nwramRegionBase && addr < nwramRegionEnd {
		if c.SCFG.NWRAMVisible(cpu) && c.NWRAM.Write(cpu, addr, val) {
			c.jit.InvalidateRange(cpu, "nwram", addr)
			return
		}
	}
	if addr >= ioSCFGBase && addr < ioConsoleIDMirrorEnd {
		if addr >= ioMBKBase && !c.SCFG.AccessEnabled(cpu) {
			return
		}
		if c.writeIO8(cpu, addr, val) {
			return
		}
	}
	c.bus.Write8(cpu, addr, val)
}

// readIO8 dispatches a byte read within the DSi-only register block.
func (c *DSi) readIO8(cpu CPU, addr uint32) (uint8, bool) {
	switch {
	case addr >= ioMBKBase && addr <= ioMBKEnd:
		return c.readMBKByte(addr), true
	case addr >= ioI2CBase && addr <= ioI2CEnd:
		if addr == ioI2CBase {
			return c.I2C.Data, true
		}
		return c.I2C.Cnt, true
	case addr >= ioConsoleIDMirrorBase && addr <= ioConsoleIDMirrorEnd:
		if c.SCFG.Bios&(1<<10) == 0 {
			return 0, true
		}
		shift := uint((addr - ioConsoleIDMirrorBase) * 8)
		return byte(c.consoleID >> shift), true
	}
	return 0, false
}

// writeIO8 dispatches a byte write within the DSi-only register block;
// returns false for ranges wider registers (NDMA/AES/SD/camera) handle
// only at 32-bit granularity via Read32/Write32.
func (c *DSi) writeIO8(cpu CPU, addr uint32, val uint8) bool {
	switch {
	case addr >= ioMBKBase && addr <= ioMBKEnd:
		c.writeMBKByte(addr, val)
		return true
	case addr >= ioI2CBase && addr <= ioI2CEnd:
		if addr == ioI2CBase {
			c.I2C.Data = val
		} else {
			c.I2C.WriteCnt(val)
		}
		return true
	}
	return false
}

// readMBKByte returns any of the 36 bytes of MBK[0..8]; writeMBKByte
// handles the 20 slot-selector bytes packed across MBK[0..4] and the
// MBK8 write-protect bits (§4.1, §6).
func (c *DSi) readMBKByte(addr uint32) byte {
	off := addr - ioMBKBase
	reg, shift := off/4, (off%4)*8
	if reg > 8 {
		return 0
	}
	return byte(c.NWRAM.mbk[0][reg] >> shift)
}

func (c *DSi) writeMBKByte(addr uint32, val byte) {
	off := addr - ioMBKBase
	reg := off / 4
	switch {
	case reg == 0:
		c.NWRAM.WriteMBKSlot(0, int(off%4), val)
	case reg >= 1 && reg <= 2:
		c.NWRAM.WriteMBKSlot(1, int(reg-1)*4+int(off%4), val)
	case reg >= 3 && reg <= 4:
		c.NWRAM.WriteMBKSlot(2, int(reg-3)*4+int(off%4), val)
	case reg == 8:
		var word uint32
		word = uint32(val) << ((off % 4) * 8)
		c.NWRAM.WriteProtect(word)
	}
}

// Read32 / Write32 cover the wider DSi register files (NDMA, AES, SD,
// camera) that are naturally accessed a word at a time.
func (c *DSi) Read32(cpu CPU, addr uint32) uint32 {
	switch {
	case addr == ioSCFGBase:
		return uint32(c.SCFG.Bios) | uint32(c.SCFG.Clock9)<<16
	case addr == ioSCFGBase+8:
		return c.SCFG.Ext[cpu]
	case addr == ioSCFGMC:
		return c.SCFG.MC
	case addr >= ioNDMABase && addr < ioNDMAEnd:
		return c.readNDMA32(cpu, addr)
	case addr >= ioAESBase && addr < ioAESEnd:
		return c.readAES32(addr)
	case addr >= ioCameraBase && addr < ioCameraEnd:
		return c.CaptureModule.Cnt
	}
	return c.bus.Read32(cpu, addr)
}

func (c *DSi) Write32(cpu CPU, addr uint32, val uint32) {
	switch {
	case addr == ioSCFGBase+8:
		c.SCFG.WriteExt(cpu, val)
		return
	case addr >= ioNDMABase && addr < ioNDMAEnd:
		c.writeNDMA32(cpu, addr, val)
		return
	case addr >= ioAESBase && addr < ioAESEnd:
		c.writeAES32(addr, val)
		return
	case addr >= ioCameraBase && addr < ioCameraEnd:
		c.CaptureModule.WriteCnt(val)
		return
	}
	c.bus.Write32(cpu, addr, val)
}

const ndmaChannelStride = 0x1C

func (c *DSi) ndmaChannel(cpu CPU, addr uint32) (*NDMAChannel, uint32) {
	base := addr - ioNDMABase
	idx := int(base / ndmaChannelStride)
	if idx >= 4 {
		idx = 3
	}
	ch := &c.NDMA.Channels[int(cpu)*4+idx]
	return ch, base % ndmaChannelStride
}

func (c *DSi) readNDMA32(cpu CPU, addr uint32) uint32 {
	ch, reg := c.ndmaChannel(cpu, addr)
	switch reg {
	case 0x00:
		return ch.Src
	case 0x04:
		return ch.Dst
	case 0x08:
		return ch.TotalLen
	case 0x0C:
		return ch.BlockLen
	case 0x18:
		return ch.Cnt
	}
	return 0
}

func (c *DSi) writeNDMA32(cpu CPU, addr uint32, val uint32) {
	ch, reg := c.ndmaChannel(cpu, addr)
	switch reg {
	case 0x00:
		ch.Src = val
	case 0x04:
		ch.Dst = val
	case 0x08:
		ch.TotalLen = val
	case 0x0C:
		ch.BlockLen = val
	case 0x10:
		ch.SubblockTimer = val
	case 0x14:
		ch.FillData = val
	case 0x18:
		c.NDMA.WriteCnt(ch, val)
	}
}

const (
	aesRegCnt    = ioAESBase + 0x00
	aesRegBlkCnt = ioAESBase + 0x04
	aesRegIn     = ioAESBase + 0x08
	aesRegOut    = ioAESBase + 0x0C
	aesRegMAC    = ioAESBase + 0x10
	aesRegRest   = ioAESBase + 0x20
)

func (c *DSi) readAES32(addr uint32) uint32 {
	switch addr {
	case aesRegCnt:
		return c.AES.Cnt
	case aesRegBlkCnt:
		return c.AES.BlkCnt
	case aesRegOut:
		v, _ := c.AES.ReadOutputFifo()
		return v
	}
	return 0
}

func (c *DSi) writeAES32(addr uint32, val uint32) {
	switch addr {
	case aesRegCnt:
		c.AES.WriteCnt(val)
	case aesRegBlkCnt:
		c.AES.BlkCnt = val
	case aesRegIn:
		c.AES.WriteInputFifo(val)
	}
}
