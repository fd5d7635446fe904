package dsi

import "encoding/binary"

// WifiDevice implements the AR6002-class SDIO Wi-Fi chip: the BMI
// bootstrap protocol, HTC service-connect handshake, and WMI
// command/event traffic that carries both control and 802.3 data frames
// (§4.8). Frame-dispatch shape grounded on other_examples' dmr-nexus
// framed-message pump: inbound command frames queue on mailbox 0, the
// chip assembles outbound events/packets into a capacity-bounded RX
// staging area (mailbox 8) and drains complete frames to the host-visible
// mailbox 4, padded to a fixed alignment. The staging area is modeled as
// a size-capped FIFO of whole frames rather than a literal byte-granular
// ring buffer; byte-exact SDIO register timing is not reproduced.

type wifiBootState int

const (
	wifiBootBMI wifiBootState = iota
	wifiBootHTC
	wifiBootWMI
)

// BMI opcodes (§4.8 "BMI boot phase").
const (
	bmiDone             = 0x01
	bmiWriteMemory      = 0x03
	bmiExecute          = 0x04
	bmiReadSocRegister  = 0x06
	bmiWriteSocRegister = 0x07
	bmiGetTargetID      = 0x08
	bmiLZStreamStart    = 0x0D
	bmiLZStreamData     = 0x0E
)

// wifiTargetROMID is the chip revision BMI_GET_TARGET_ID reports back.
const wifiTargetROMID = 0x00000002

// HTC command/event IDs (§4.8 "HTC phase").
const (
	htcCmdServiceConnect = 0x0002
	htcCmdSetupComplete  = 0x0004

	htcEvtServiceConnect = 0x0003
	htcEvtReady          = 0x1001
	htcEvtRegDomain      = 0x1006
)

// WMI command IDs (§4.8 "WMI phase").
const (
	wmiCmdConnect              = 0x0001
	wmiCmdDisconnect           = 0x0003
	wmiCmdSynchronize          = 0x0004
	wmiCmdCreatePriorityStream = 0x0005
	wmiCmdStartScan            = 0x0007
	wmiCmdSetScanParams        = 0x0008
	wmiCmdSetBSSFilter         = 0x0009
	wmiCmdSetProbedSSID        = 0x000A
	wmiCmdSetDisconnectTimeout = 0x000D
	wmiCmdGetChannelList       = 0x000E
	wmiCmdSetChannelParams     = 0x0011
	wmiCmdSetPowerMode         = 0x0012
	wmiCmdSetErrorMask         = 0x0022
	wmiCmdExtended             = 0x002E
	wmiCmdSetKeepalive         = 0x003D
	wmiCmdSetWSCStatus         = 0x0041
	wmiCmd47                   = 0x0047
	wmiCmd48                   = 0x0048
	wmiCmdHostExitNotify       = 0x0049
	wmiCmdSetBitrate           = 0xF000

	wmiExtHeartbeat = 0x2008
)

// WMI event IDs the chip emits back to the host (§4.8 "WMI phase").
const (
	wmiEvtConnectResult  = 0x1002
	wmiEvtDisconnect     = 0x1003
	wmiEvtBSSInfo        = 0x1004
	wmiEvtHeartbeatReply = 0x1010
	wmiEvtChannelList    = 0x000E
	wmiEvtScanComplete   = 0x100A
)

const (
	wifiChipIDAddr       = 0x40EC
	wifiResetCauseAddr   = 0x40C0
	wifiEEPROMMirrorBase = 0x1FFC00
	wifiEEPROMSize       = 0x400

	wifiRXStagingCapacity = 32 * 1024
	wifiMailboxAlignment  = 128

	// wifiBeaconIntervalTicks mirrors the real chip's ~128ms beacon cadence
	// driven off the 1ms timer: every 0x80 ticks while a scan is active
	// (§4.8 "1 ms timer").
	wifiBeaconIntervalTicks = 0x80
)

// htcService is one registered HTC endpoint.
type htcService struct {
	ServiceID uint16
	Credits   uint8
}

// WifiDevice is the SDIO-attached Wi-Fi state machine.
type WifiDevice struct {
	boot wifiBootState

	cmdIn    [][]byte // frames the host wrote into mailbox 0
	eventOut [][]byte // frames drained to mailbox 4, ready for the host to read

	rxStaging [][]byte // mailbox 8: frames pending drain to mailbox 4
	rxBytes   int      // total bytes currently staged, bounds wifiRXStagingCapacity

	services map[uint16]*htcService

	windowData, windowReadAddr, windowWriteAddr uint32
	hostIntAddr                                 uint32
	chipScratch                                 [0x20000]byte
	eeprom                                      [wifiEEPROMSize]byte

	connectionStatus bool
	scanActive       bool
	scanTimer        uint32
	beaconTimer      uint64
	errorMask        uint32

	macAddr [6]byte
	apMac   [6]byte

	cmdWriteBuf []byte // SDIO CMD53 bytes accumulating into the next command frame
	evtReadBuf  []byte // SDIO CMD53 bytes being drained from the current event frame

	platform Platform
	irq      IRQController
	log      Logger
}

func newWifiDevice(platform Platform, irq IRQController, log Logger) *WifiDevice {
	w := &WifiDevice{platform: platform, irq: irq, log: log}
	w.Reset()
	return w
}

// HTC service IDs (§4.8 "HTC").
const (
	htcServiceControl = 0x0000
	htcServiceWMI     = 0x0100
	htcServiceData    = 0x0002
)

var wifiDefaultMAC = [6]byte{0x00, 0x09, 0xBF, 0x12, 0x34, 0x56}
var wifiDefaultAPMac = [6]byte{0x00, 0x09, 0xBF, 0xAA, 0xBB, 0xCC}

// Reset returns the chip to its post-power-up BMI state (§3).
func (w *WifiDevice) Reset() {
	w.boot = wifiBootBMI
	w.cmdIn = nil
	w.eventOut = nil
	w.rxStaging = nil
	w.rxBytes = 0
	w.services = map[uint16]*htcService{
		htcServiceControl: {ServiceID: htcServiceControl, Credits: 6},
	}
	w.windowData, w.windowReadAddr, w.windowWriteAddr = 0, 0, 0
	w.hostIntAddr = 0x00500400
	w.connectionStatus = false
	w.scanActive = false
	w.scanTimer = 0
	w.beaconTimer = 0
	w.errorMask = 0
	w.macAddr = wifiDefaultMAC
	w.apMac = wifiDefaultAPMac
	copy(w.eeprom[0x008:0x00A], []byte{0x34, 0x0C}) // regdomain low 12 bits
	copy(w.eeprom[0x00A:0x010], w.macAddr[:])
}

// WindowRead services a host read of the SoC register window the BMI
// phase's READ_SOC_REGISTER command and the function-1 peek/poke
// registers expose (§4.8 "Window peek/poke"). A handful of addresses are
// special-cased; everything else falls through to raw chip scratch RAM.
func (w *WifiDevice) WindowRead(addr uint32) uint32 {
	if addr >= w.hostIntAddr && addr < w.hostIntAddr+0x100 {
		switch addr - w.hostIntAddr {
		case 0x54:
			return wifiEEPROMMirrorBase
		case 0x58:
			return 1 // EEPROM ready
		}
		return 0
	}
	if addr&0x1FFC00 == wifiEEPROMMirrorBase {
		off := addr & 0x3FF
		if int(off) < len(w.eeprom) {
			return uint32(w.eeprom[off])
		}
		return 0
	}
	switch addr {
	case wifiChipIDAddr:
		return 0x00000000
	case wifiResetCauseAddr:
		return 2
	}
	if int(addr) < len(w.chipScratch) {
		return uint32(w.chipScratch[addr])
	}
	return 0
}

// WindowWrite services a host write of the SoC register window; addresses
// outside chip scratch RAM are a logged no-op (§4.8).
func (w *WifiDevice) WindowWrite(addr, val uint32) {
	if int(addr) < len(w.chipScratch) {
		w.chipScratch[addr] = byte(val)
		return
	}
	w.log.Debugf("wifi: window write to unmapped addr %#x", addr)
}

// BMICommand processes one BMI command frame (§4.8 "BMI boot phase").
func (w *WifiDevice) BMICommand(cmd []byte) []byte {
	if w.boot != wifiBootBMI || len(cmd) < 4 {
		return nil
	}
	opcode := binary.LittleEndian.Uint32(cmd[0:4])
	switch opcode {
	case bmiDone:
		w.boot = wifiBootHTC
		evt := make([]byte, 6)
		binary.LittleEndian.PutUint16(evt[0:2], 0x0001)
		return evt

	case bmiWriteMemory:
		if len(cmd) < 12 {
			return nil
		}
		addr := binary.LittleEndian.Uint32(cmd[4:8])
		length := binary.LittleEndian.Uint32(cmd[8:12])
		data := cmd[12:]
		for i := uint32(0); i < length && int(i) < len(data); i++ {
			w.WindowWrite(addr+i, uint32(data[i]))
		}
		return nil

	case bmiExecute:
		if len(cmd) < 12 {
			return nil
		}
		entry := binary.LittleEndian.Uint32(cmd[4:8])
		arg := binary.LittleEndian.Uint32(cmd[8:12])
		w.log.Debugf("wifi: BMI_EXECUTE entry=%#x arg=%#x", entry, arg)
		return nil

	case bmiReadSocRegister:
		if len(cmd) < 8 {
			return nil
		}
		addr := binary.LittleEndian.Uint32(cmd[4:8])
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, w.WindowRead(addr))
		return out

	case bmiWriteSocRegister:
		if len(cmd) < 12 {
			return nil
		}
		addr := binary.LittleEndian.Uint32(cmd[4:8])
		val := binary.LittleEndian.Uint32(cmd[8:12])
		w.WindowWrite(addr, val)
		return nil

	case bmiGetTargetID:
		out := make([]byte, 16)
		binary.LittleEndian.PutUint32(out[0:4], 0xFFFFFFFF)
		binary.LittleEndian.PutUint32(out[4:8], 0x0000000C)
		binary.LittleEndian.PutUint32(out[8:12], wifiTargetROMID)
		binary.LittleEndian.PutUint32(out[12:16], 0x00000002)
		return out

	case bmiLZStreamStart, bmiLZStreamData:
		return nil // streamed firmware payload, discarded

	default:
		w.log.Warnf("wifi: unhandled BMI opcode %#x", opcode)
		return nil
	}
}

// htcFrame is the shared {hdr16, len16, flags16} preamble every HTC/WMI
// command frame carries ahead of its cmd16 and payload (§4.8).
type htcFrame struct {
	Hdr, Len, Flags uint16
	Cmd             uint16
	Payload         []byte
}

func parseHTCFrame(b []byte) (htcFrame, bool) {
	if len(b) < 8 {
		return htcFrame{}, false
	}
	f := htcFrame{
		Hdr:   binary.LittleEndian.Uint16(b[0:2]),
		Len:   binary.LittleEndian.Uint16(b[2:4]),
		Flags: binary.LittleEndian.Uint16(b[4:6]),
		Cmd:   binary.LittleEndian.Uint16(b[6:8]),
	}
	f.Payload = b[8:]
	return f, true
}

// HTCCommand dispatches one HTC-phase frame (§4.8 "HTC phase").
func (w *WifiDevice) HTCCommand(raw []byte) {
	f, ok := parseHTCFrame(raw)
	if !ok {
		return
	}
	switch f.Cmd {
	case htcCmdServiceConnect:
		if len(f.Payload) < 2 {
			return
		}
		svcID := binary.LittleEndian.Uint16(f.Payload[0:2])
		svc := &htcService{ServiceID: svcID, Credits: 6}
		w.services[svcID] = svc

		maxMsgSize := uint16(0x0600)
		if svcID == htcServiceWMI {
			maxMsgSize = 0x0602
		}
		resp := make([]byte, 8)
		binary.LittleEndian.PutUint16(resp[0:2], svcID)
		resp[2] = 0
		resp[3] = byte(svcID) + 1
		binary.LittleEndian.PutUint16(resp[4:6], maxMsgSize)
		w.sendWMIEvent(0, htcEvtServiceConnect, resp)

	case htcCmdSetupComplete:
		ready := make([]byte, 12)
		copy(ready[0:6], w.macAddr[:])
		ready[6] = 0x02
		ready[7] = 0
		binary.LittleEndian.PutUint32(ready[8:12], 0x2300006C)
		w.sendWMIEvent(1, htcEvtReady, ready)

		regdomain := make([]byte, 4)
		binary.LittleEndian.PutUint32(regdomain, 0x80000000|uint32(binary.LittleEndian.Uint16(w.eeprom[0x008:0x00A])&0x0FFF))
		w.sendWMIEvent(1, htcEvtRegDomain, regdomain)

		w.boot = wifiBootWMI

	default:
		w.log.Warnf("wifi: unhandled HTC command %#04x", f.Cmd)
	}
}

// HTCConnectService implements the HTC service-connect handshake outside
// the frame path, used by hosts that drive service connect directly
// rather than through a raw HTC frame.
func (w *WifiDevice) HTCConnectService(serviceID uint16) (mailbox int, ok bool) {
	if w.boot == wifiBootBMI {
		return 0, false
	}
	w.services[serviceID] = &htcService{ServiceID: serviceID, Credits: 6}
	if serviceID == htcServiceWMI {
		w.boot = wifiBootWMI
	}
	return 0, true
}

// WMICommand dispatches one WMI-phase frame: commands on endpoints 0/1,
// outbound 802.3 data frames on endpoints >1 (§4.8 "WMI phase").
func (w *WifiDevice) WMICommand(raw []byte) {
	f, ok := parseHTCFrame(raw)
	if !ok {
		return
	}
	ep := byte(f.Hdr)
	if ep > 1 {
		w.sendDataFrame(f.Payload)
		return
	}

	switch f.Cmd {
	case wmiCmdConnect:
		w.wmiConnectToNetwork(f.Payload)
	case wmiCmdDisconnect:
		w.connectionStatus = false
		reply := make([]byte, 11)
		binary.LittleEndian.PutUint16(reply[0:2], 3)
		copy(reply[2:8], w.apMac[:])
		reply[8] = 3
		w.sendWMIEvent(1, wmiEvtDisconnect, reply)
	case wmiCmdSynchronize, wmiCmdCreatePriorityStream, wmiCmdSetScanParams,
		wmiCmdSetDisconnectTimeout, wmiCmdSetChannelParams, wmiCmdSetPowerMode,
		wmiCmdSetKeepalive, wmiCmdSetWSCStatus, wmiCmd47, wmiCmd48,
		wmiCmdHostExitNotify, wmiCmdSetBitrate:
		// acknowledged but not otherwise modeled: scan tuning, channel
		// selection, power save, WPS, and bitrate negotiation have no
		// observable effect on a host-loopback link (§4.8).
	case wmiCmdStartScan:
		if len(f.Payload) >= 12 {
			scantime := binary.LittleEndian.Uint32(f.Payload[8:12])
			w.scanTimer = scantime * 5
			w.scanActive = true
		}
	case wmiCmdSetBSSFilter:
		// bss filter byte + IE mask accepted, not enforced.
	case wmiCmdSetProbedSSID:
		// probed SSID accepted, not stored; no passive-scan SSID list modeled.
	case wmiCmdGetChannelList:
		const nchan = 11
		reply := make([]byte, 4+nchan*2)
		reply[0] = 0
		reply[1] = nchan
		for i := 0; i < nchan; i++ {
			binary.LittleEndian.PutUint16(reply[2+i*2:], uint16(2412+i*5))
		}
		w.sendWMIEvent(1, wmiEvtChannelList, reply)
	case wmiCmdSetErrorMask:
		if len(f.Payload) >= 4 {
			w.errorMask = binary.LittleEndian.Uint32(f.Payload[0:4])
		}
	case wmiCmdExtended:
		if len(f.Payload) >= 12 && binary.LittleEndian.Uint32(f.Payload[0:4]) == wmiExtHeartbeat {
			cookie := binary.LittleEndian.Uint32(f.Payload[4:8])
			source := binary.LittleEndian.Uint32(f.Payload[8:12])
			reply := make([]byte, 12)
			binary.LittleEndian.PutUint32(reply[0:4], 0x3007)
			binary.LittleEndian.PutUint32(reply[4:8], cookie)
			binary.LittleEndian.PutUint32(reply[8:12], source)
			w.sendWMIEvent(1, wmiEvtHeartbeatReply, reply)
		}
	default:
		w.log.Warnf("wifi: unhandled WMI command %#04x", f.Cmd)
	}

	if f.Hdr&(1<<8) != 0 {
		w.sendWMIAck(ep)
	}
}

// wmiConnectToNetwork validates the fixed connect-to-network parameters
// this core actually needs to accept (open WPA-less association against
// the emulated access point) and replies with a success event (§4.8).
func (w *WifiDevice) wmiConnectToNetwork(payload []byte) {
	if len(payload) < 8+32+2+6+4 {
		return
	}
	typ, auth11, auth, pCrypto, gCrypto := payload[0], payload[1], payload[2], payload[3], payload[5]
	bssid := payload[8+32+2 : 8+32+2+6]
	if typ != 0x01 || auth11 != 0x01 || auth != 0x01 || pCrypto != 0x01 || gCrypto != 0x01 || !macEqual(bssid, w.apMac[:]) {
		w.log.Warnf("wifi: connect-to-network rejected bad parameters")
		return
	}

	reply := make([]byte, 20)
	binary.LittleEndian.PutUint16(reply[0:2], 2437)
	copy(reply[2:8], w.apMac[:])
	binary.LittleEndian.PutUint16(reply[8:10], 128)
	binary.LittleEndian.PutUint16(reply[10:12], 128)
	binary.LittleEndian.PutUint32(reply[12:16], 0x01)
	reply[16], reply[17], reply[18], reply[19] = 0x16, 0x2F, 0x16, 0

	w.sendWMIEvent(1, wmiEvtConnectResult, reply)
	w.connectionStatus = true
}

func macEqual(a, b []byte) bool {
	if len(a) != 6 || len(b) != 6 {
		return false
	}
	for i := 0; i < 6; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sendDataFrame unwraps an LLC-encapsulated outbound 802.3 frame and
// forwards it to the platform's LAN transport (§4.8 "Data frames").
func (w *WifiDevice) sendDataFrame(payload []byte) {
	if !w.connectionStatus {
		w.log.Warnf("wifi: refusing to send data while disconnected")
		return
	}
	if len(payload) < 12+4+2+2 {
		return
	}
	dstMac := payload[0:6]
	srcMac := payload[6:12]
	plen := binary.LittleEndian.Uint16(payload[12:14])
	llcHdr := binary.LittleEndian.Uint32(payload[14:18])
	llcTail := binary.LittleEndian.Uint16(payload[18:20])
	if llcHdr != 0xAAAA0003 || llcTail != 0x0000 {
		w.log.Warnf("wifi: bad LLC header on outbound data frame")
		return
	}
	ethertype := payload[20:22]
	body := payload[22:]
	if int(plen) > len(body)+8 {
		return
	}

	frame := make([]byte, 14+len(body))
	copy(frame[0:6], dstMac)
	copy(frame[6:12], srcMac)
	copy(frame[12:14], ethertype)
	copy(frame[14:], body)

	if w.platform != nil {
		w.platform.LANSend(frame)
	}
}

// sendWMIEvent stages an event frame into the RX buffer: a 6-byte header
// (endpoint, flags, data length, trailer length, reserved) followed by
// the event ID and payload, then an 8-byte credit-report trailer (§4.8).
func (w *WifiDevice) sendWMIEvent(ep byte, id uint16, data []byte) {
	hdr := make([]byte, 6+2+len(data)+8)
	hdr[0] = ep
	hdr[1] = 0x02
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(data)+2+8))
	hdr[4] = 8
	hdr[5] = 0
	binary.LittleEndian.PutUint16(hdr[6:8], id)
	copy(hdr[8:], data)
	trailer := hdr[8+len(data):]
	copy(trailer, []byte{0x02, 0x06, 0, 0, 0, 0, 0, 0})
	w.stageRX(hdr)
}

// sendWMIAck stages a 12-byte credit-report/lookahead ack frame on
// endpoint 0, sent after any command frame requesting one (§4.8).
func (w *WifiDevice) sendWMIAck(ep byte) {
	buf := make([]byte, 6+12)
	buf[0], buf[1] = 0, 0x02
	binary.LittleEndian.PutUint16(buf[2:4], 0xC)
	buf[4], buf[5] = 0xC, 0
	buf[6], buf[7], buf[8], buf[9] = 0x01, 0x02, ep, 0x01
	copy(buf[10:], []byte{0x02, 0x06, 0, 0, 0, 0, 0, 0})
	w.stageRX(buf)
}

// sendWMIBSSInfo stages a beacon/BSS-info event on endpoint 1 (§4.8
// "1 ms timer").
func (w *WifiDevice) sendWMIBSSInfo(kind byte, data []byte) {
	buf := make([]byte, 6+2+16+len(data))
	buf[0], buf[1] = 1, 0x00
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(data)+2+16))
	buf[4], buf[5] = 0xFF, 0xFF
	binary.LittleEndian.PutUint16(buf[6:8], wmiEvtBSSInfo)
	binary.LittleEndian.PutUint16(buf[8:10], 2437)
	buf[10] = kind
	buf[11] = 0x1B
	binary.LittleEndian.PutUint16(buf[12:14], 0xFFBC)
	copy(buf[14:20], w.apMac[:])
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	copy(buf[24:], data)
	w.stageRX(buf)
}

// stageRX enqueues one complete frame into the bounded RX staging area,
// dropping it (and logging) if capacity is exhausted, then drains (§4.8
// "RX staging").
func (w *WifiDevice) stageRX(frame []byte) {
	if w.rxBytes+len(frame) > wifiRXStagingCapacity {
		w.log.Warnf("wifi: RX staging buffer full, dropping frame")
		return
	}
	w.rxStaging = append(w.rxStaging, frame)
	w.rxBytes += len(frame)
	w.drainRXBuffer()
}

// drainRXBuffer moves staged frames into the host-readable event queue,
// padding each to a fixed alignment with zero bytes (§4.8 "RX staging").
func (w *WifiDevice) drainRXBuffer() {
	for len(w.rxStaging) > 0 {
		frame := w.rxStaging[0]
		w.rxStaging = w.rxStaging[1:]
		w.rxBytes -= len(frame)

		padded := len(frame)
		if rem := padded % wifiMailboxAlignment; rem != 0 {
			padded += wifiMailboxAlignment - rem
		}
		out := make([]byte, padded)
		copy(out, frame)
		w.eventOut = append(w.eventOut, out)
	}
}

// EnqueueMailbox pushes a host->chip command frame into mailbox 0.
func (w *WifiDevice) EnqueueMailbox(mb int, frame []byte) bool {
	if mb != 0 {
		return false
	}
	w.cmdIn = append(w.cmdIn, frame)
	return true
}

// DequeueMailbox pops the next chip->host event/data frame, if any.
func (w *WifiDevice) DequeueMailbox(mb int) ([]byte, bool) {
	if mb != 4 || len(w.eventOut) == 0 {
		return nil, false
	}
	f := w.eventOut[0]
	w.eventOut = w.eventOut[1:]
	return f, true
}

// dispatchOneCommand pops and processes one queued command frame through
// the active boot-phase dispatcher, raising the host IRQ if it produced
// any events. Shared by Tick's own polling and the SDIO byte-I/O bridge,
// which has no polling cadence of its own and must dispatch the moment
// the host's CMD53 write completes a frame (§4.8 "Mailbox write
// triggers").
func (w *WifiDevice) dispatchOneCommand() {
	if len(w.cmdIn) == 0 {
		return
	}
	frame := w.cmdIn[0]
	w.cmdIn = w.cmdIn[1:]

	switch w.boot {
	case wifiBootBMI:
		if resp := w.BMICommand(frame); resp != nil {
			w.eventOut = append(w.eventOut, resp)
		}
	case wifiBootHTC:
		w.HTCCommand(frame)
	case wifiBootWMI:
		w.WMICommand(frame)
	}
	if len(w.eventOut) > 0 {
		w.irq.RaiseIRQ(ARM7, IRQDSiNWifi)
	}
}

// Tick drains one queued command frame through the active boot-phase
// dispatcher and advances the beacon/scan timers; it is the 1ms timer
// entry point §4.8 names.
func (w *WifiDevice) Tick() {
	w.dispatchOneCommand()

	w.beaconTimer++
	if w.scanActive {
		if w.beaconTimer&(wifiBeaconIntervalTicks-1) == 0 {
			w.sendBeacon()
		}
		if w.scanTimer > 0 {
			w.scanTimer--
			if w.scanTimer == 0 {
				w.scanActive = false
				status := make([]byte, 4)
				w.sendWMIEvent(1, wmiEvtScanComplete, status)
			}
		}
	}

	if w.connectionStatus {
		w.checkRX()
	}
}

// sendBeacon synthesizes a fixed 802.11 beacon body advertising the
// emulated access point, matching the one real DSi Wi-Fi joins in a
// host-loopback session (§4.8 "1 ms timer").
func (w *WifiDevice) sendBeacon() {
	beacon := []byte{
		0x80, 0x00, // beacon interval
		0x01, 0x04, 0x82, 0x84, 0x8B, 0x96, // supported rates IE
		0x03, 0x01, 0x06, // DS parameter set: channel 6
		0x00, 0x07, 'm', 'e', 'l', 'o', 'n', 'A', 'P', // SSID IE
	}
	w.sendWMIBSSInfo(0x01, beacon)
}

// checkRX pulls one inbound packet from the platform's LAN transport,
// filters it by destination/source MAC the way real hardware's receive
// filter does, and stages it as a WMI data-endpoint frame (§4.8 "Data
// frames", testable self-filtering property).
func (w *WifiDevice) checkRX() {
	if w.platform == nil {
		return
	}
	rx, ok := w.platform.LANRecv()
	if !ok || len(rx) < 14 {
		return
	}
	dst := rx[0:6]
	src := rx[6:12]
	broadcast := dst[0] == 0xFF && dst[1] == 0xFF && dst[2] == 0xFF && dst[3] == 0xFF && dst[4] == 0xFF && dst[5] == 0xFF
	if !broadcast && !macEqual(dst, w.macAddr[:]) {
		return // not addressed to us
	}
	if macEqual(src, w.macAddr[:]) {
		return // our own transmission looped back
	}

	ethertype := rx[12:14]
	body := rx[14:]
	payload := make([]byte, 2+6+2+6+2+4+2+2+len(body))
	binary.LittleEndian.PutUint16(payload[0:2], 0x0080)
	copy(payload[2:8], dst)
	copy(payload[8:14], src)
	binary.LittleEndian.PutUint16(payload[14:16], uint16(len(body)+8))
	binary.LittleEndian.PutUint32(payload[16:20], 0xAAAA0003)
	binary.LittleEndian.PutUint16(payload[20:22], 0x0000)
	copy(payload[22:24], ethertype)
	copy(payload[24:], body)

	frame := make([]byte, 6+len(payload))
	frame[0], frame[1] = 2, 0x00
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(payload)))
	frame[4], frame[5] = 0, 0
	copy(frame[6:], payload)
	w.stageRX(frame)
}

// SDIO function numbers and the control function's byte-addressed regions
// the CMD52/CMD53 bridge recognizes (§4.8 "Function 0"/"Function 1").
const (
	sdioFnCIS     = 0
	sdioFnControl = 1

	sdioMailboxCmdBase  = 0x00000 // fn1: bytes written here accumulate a command frame
	sdioMailboxCmdFlush = 0x001FF // fn1: writing this address flushes+dispatches it
	sdioMailboxEvtAddr  = 0x00400 // fn1: reads drain the next staged event/data frame byte by byte
)

// SDIOReadByte services one byte read issued by an attached SD host
// running the SDIO protocol (CMD52/CMD53), bridging the host's SDHost
// registers to the chip's mailboxes and register window (§4.8, finding
// that SDHostWifi needs a full SDIO card to talk to).
func (w *WifiDevice) SDIOReadByte(fn int, addr uint32) byte {
	if fn != sdioFnControl {
		return 0xFF // function 0 CIS/IRQ registers: no capability data modeled
	}
	if addr == sdioMailboxEvtAddr {
		if len(w.evtReadBuf) == 0 {
			frame, ok := w.DequeueMailbox(4)
			if !ok {
				return 0
			}
			w.evtReadBuf = frame
		}
		b := w.evtReadBuf[0]
		w.evtReadBuf = w.evtReadBuf[1:]
		return b
	}
	return byte(w.WindowRead(addr))
}

// SDIOWriteByte services one byte write issued by an attached SD host
// running the SDIO protocol.
func (w *WifiDevice) SDIOWriteByte(fn int, addr uint32, val byte) {
	if fn != sdioFnControl {
		return
	}
	switch {
	case addr == sdioMailboxCmdFlush:
		if len(w.cmdWriteBuf) > 0 {
			w.EnqueueMailbox(0, w.cmdWriteBuf)
			w.cmdWriteBuf = nil
			w.dispatchOneCommand()
		}
	case addr >= sdioMailboxCmdBase && addr < sdioMailboxCmdFlush:
		w.cmdWriteBuf = append(w.cmdWriteBuf, val)
	default:
		w.WindowWrite(addr, uint32(val))
	}
}

// SendFrame hands an outbound data frame to the platform's LAN transport,
// used by host-side tooling that drives the link outside the WMI frame
// path.
func (w *WifiDevice) SendFrame(frame []byte) bool {
	if !w.connectionStatus || w.platform == nil {
		return false
	}
	return w.platform.LANSend(frame)
}
