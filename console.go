package dsi

// DSi is the top-level aggregate wiring every DSi-added subsystem to the
// NDS base collaborators handed in at construction (§1, §3): a single
// machine-level struct that owns every chip and forwards Reset/bus calls
// to them, with per-component Reset methods defined in each chip's own
// file instead of one shared interface.
type DSi struct {
	NWRAM         *NWRAM
	SCFG          SCFG
	NDMA          *NDMAEngine
	AES           *AESEngine
	NAND          *NAND
	I2C           *I2CBus
	BPTWL         *BPTWL
	Camera0       *Camera
	Camera1       *Camera
	CaptureModule *CaptureModule
	SDHostEMMC    *SDHost
	SDHostWifi    *SDHost
	Wifi          *WifiDevice
	TSC           *TSC

	consoleID uint64
	mainRAM   []byte
	cartInserted bool

	bus      Bus
	irq      IRQController
	jit      JITInvalidator
	sched    Scheduler
	platform Platform
	log      Logger
}

// DSiArgs configures a new DSi core (§1 "construction contract").
type DSiArgs struct {
	Bus      Bus
	IRQ      IRQController
	JIT      JITInvalidator
	Scheduler Scheduler
	Platform Platform
	Logger   Logger // nil uses a no-op logger

	ConsoleID  uint64
	MainRAMLen uint32 // 16 or 32 MiB, per SCFG_EXT reset default
}

// New constructs a DSi core with every subsystem wired to the given
// collaborators (§1, §3).
func New(args DSiArgs) *DSi {
	log := args.Logger
	if log == nil {
		log = nopLogger{}
	}
	if args.MainRAMLen == 0 {
		args.MainRAMLen = 16 * 1024 * 1024
	}

	c := &DSi{
		bus: args.Bus, irq: args.IRQ, jit: args.JIT, sched: args.Scheduler,
		platform: args.Platform, log: log, consoleID: args.ConsoleID,
		mainRAM: make([]byte, args.MainRAMLen),
	}

	c.NWRAM = newNWRAM(args.JIT, log)
	c.NDMA = newNDMAEngine(args.Bus, args.IRQ, args.JIT, log)
	c.AES = newAESEngine(args.IRQ, c.NDMA, log)
	c.NAND = newNAND(log)
	c.I2C = newI2CBus(log)
	c.BPTWL = newBPTWL(args.IRQ, log)
	c.Camera0 = newCamera(0, log)
	c.Camera1 = newCamera(1, log)
	c.CaptureModule = newCaptureModule(args.Platform, args.IRQ, c.NDMA, log)
	c.SDHostEMMC = newSDHost(sdPortEmmc, args.IRQ, c.NDMA, log)
	c.SDHostWifi = newSDHost(sdPortSDIO, args.IRQ, c.NDMA, log)
	c.Wifi = newWifiDevice(args.Platform, args.IRQ, log)
	c.SDHostWifi.AttachSDIO(c.Wifi)
	c.TSC = newTSC(args.IRQ, log)

	c.I2C.Attach(i2cDeviceBPTWL, c.BPTWL)
	c.I2C.Attach(i2cDeviceCamera0, c.Camera0)
	c.I2C.Attach(i2cDeviceCamera1, c.Camera1)

	c.Reset()
	return c
}

// Reset restores every subsystem to its cold-boot state (§3).
func (c *DSi) Reset() {
	c.NWRAM.Reset()
	c.SCFG.Reset(c.cartInserted)
	c.NDMA.Reset()
	c.AES.Reset(c.consoleID)
	c.I2C.Reset()
	c.BPTWL.Reset()
	c.Camera0.Reset()
	c.Camera1.Reset()
	c.CaptureModule.Reset()
	c.SDHostEMMC.Reset()
	c.SDHostWifi.Reset()
	c.Wifi.Reset()
	c.TSC.Reset()
	for i := range c.mainRAM {
		c.mainRAM[i] = 0
	}
}

// SoftReset performs the scaled-down reset a DSi soft reboot triggers:
// subsystem register state is cleared but main RAM contents and the
// attached NAND/cart are preserved (§4.10 "Soft reset").
func (c *DSi) SoftReset() {
	c.NWRAM.Reset()
	c.SCFG.Reset(c.cartInserted)
	c.NDMA.Reset()
	c.AES.Reset(c.consoleID)
	c.CaptureModule.Reset()
	c.SDHostEMMC.Reset()
	c.TSC.Reset()
}

// LoadNAND attaches a parsed NAND image and its matching SD/MMC host.
func (c *DSi) LoadNAND(image []byte) error {
	if err := c.NAND.Load(image); err != nil {
		return err
	}
	c.SDHostEMMC.AttachCard(&nandCardAdapter{nand: c.NAND})
	return nil
}

// AttachSDCard attaches (or, with card==nil, ejects) a TF/SD card image on
// the eMMC host. The host has a single card slot, so the card replaces
// whatever was attached before, the NAND adapter included; eMMC and TF
// cannot be attached at the same time.
func (c *DSi) AttachSDCard(card MMCStorage) {
	c.SDHostEMMC.AttachCard(card)
}

// LoadCart marks whether a cartridge is physically inserted, which SCFG_MC
// bit 0 reports to software (§3, §6).
func (c *DSi) LoadCart(inserted bool) {
	c.cartInserted = inserted
	c.SCFG.Reset(inserted)
}

func (c *DSi) writeARM9Byte(addr uint32, val byte) {
	if addr >= 0x02000000 && addr-0x02000000 < uint32(len(c.mainRAM)) {
		c.mainRAM[addr-0x02000000] = val
		c.jit.InvalidateRange(ARM9, "main-ram", addr)
		return
	}
	c.Write8(ARM9, addr, val)
}

func (c *DSi) bootCPU(cpu CPU, entry uint32) {
	c.sched.Schedule(EventSoftReset, false, 0, entry)
}

// nandCardAdapter exposes the NAND image's sector-crypto read/write path
// through the MMCStorage contract the SD host pipeline expects (§4.4,
// §4.5).
type nandCardAdapter struct {
	nand *NAND
}

func (a *nandCardAdapter) ReadBlock(index uint32, dst []byte) error {
	return a.nand.ReadSector(index, dst)
}

func (a *nandCardAdapter) WriteBlock(index uint32, src []byte) error {
	return a.nand.WriteSector(index, src)
}

func (a *nandCardAdapter) NumBlocks() uint32 {
	return uint32(len(a.nand.image)) / nandSectorSize
}

func (a *nandCardAdapter) ReadOnly() bool { return false }
func (a *nandCardAdapter) CID() [16]byte  { return [16]byte{} }
func (a *nandCardAdapter) CSD() [16]byte  { return [16]byte{} }

// RunFrame advances the console's DSi-owned subsystems by one video frame
// worth of periodic work the NDS base does not already drive directly:
// the capture module's scanline pump and the Wi-Fi chip's 1ms timer tick
// count supplied by the caller (§4.7, §4.8). Command/response traffic
// itself flows through SDHostWifi's CMD52/CMD53 dispatch (§4.4, §4.8),
// which is wired straight to the Wi-Fi device and driven by the ARM7 SD
// host register writes, not by this loop; Tick only advances the beacon/
// scan timers and polls the LAN receive filter. CPU execution itself
// belongs to the NDS base (§1 out of scope).
func (c *DSi) RunFrame(wifiTicks int) StopReason {
	c.CaptureModule.Tick(c.sched)
	for i := 0; i < wifiTicks; i++ {
		c.Wifi.Tick()
	}
	return StopNone
}
