package dsi

import (
	"encoding/binary"
	"testing"
)

func TestWifi_BMIDoneTransitionsToHTC(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	if w.boot != wifiBootBMI {
		t.Fatal("chip should power up in BMI boot state")
	}
	cmd := make([]byte, 4)
	binary.LittleEndian.PutUint32(cmd, bmiDone)
	w.BMICommand(cmd)
	if w.boot != wifiBootHTC {
		t.Error("BMI_DONE should transition the chip to the HTC phase")
	}
}

func TestWifi_BMISocRegisterRoundTrips(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})

	writeCmd := make([]byte, 12)
	binary.LittleEndian.PutUint32(writeCmd[0:4], bmiWriteSocRegister)
	binary.LittleEndian.PutUint32(writeCmd[4:8], 0x100)
	binary.LittleEndian.PutUint32(writeCmd[8:12], 0xDEADBEEF)
	w.BMICommand(writeCmd)

	readCmd := make([]byte, 8)
	binary.LittleEndian.PutUint32(readCmd[0:4], bmiReadSocRegister)
	binary.LittleEndian.PutUint32(readCmd[4:8], 0x100)
	got := w.BMICommand(readCmd)
	if len(got) != 4 {
		t.Fatalf("BMI_READ_SOC_REGISTER reply len = %d, want 4", len(got))
	}
	// WindowWrite/WindowRead address individual scratch bytes, so a 32-bit
	// store is only readable back as its low byte at that address.
	want := uint32(0xDEADBEEF & 0xFF)
	if got32 := binary.LittleEndian.Uint32(got); got32 != want {
		t.Errorf("BMI_READ_SOC_REGISTER = %#x, want %#x", got32, want)
	}
}

func TestWifi_BMIGetTargetIDReportsROMID(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	cmd := make([]byte, 4)
	binary.LittleEndian.PutUint32(cmd, bmiGetTargetID)
	got := w.BMICommand(cmd)
	if len(got) != 16 {
		t.Fatalf("BMI_GET_TARGET_ID reply len = %d, want 16", len(got))
	}
	if binary.LittleEndian.Uint32(got[0:4]) != 0xFFFFFFFF {
		t.Error("BMI_GET_TARGET_ID reply should start with 0xFFFFFFFF")
	}
	if binary.LittleEndian.Uint32(got[8:12]) != wifiTargetROMID {
		t.Error("BMI_GET_TARGET_ID reply should report the chip ROM ID")
	}
}

func advanceToWMI(w *WifiDevice) {
	w.boot = wifiBootWMI
}

func TestWifi_HTCServiceConnectStagesReplyEvent(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	w.boot = wifiBootHTC

	frame := make([]byte, 10)
	binary.LittleEndian.PutUint16(frame[6:8], htcCmdServiceConnect)
	binary.LittleEndian.PutUint16(frame[8:10], htcServiceWMI)
	w.HTCCommand(frame)

	if _, ok := w.services[htcServiceWMI]; !ok {
		t.Error("HTC service-connect should register the WMI service")
	}
	if len(w.eventOut) == 0 {
		t.Fatal("HTC service-connect should stage a reply event for the host")
	}
}

func TestWifi_HTCSetupCompleteAdvancesToWMI(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	w.boot = wifiBootHTC

	frame := make([]byte, 8)
	binary.LittleEndian.PutUint16(frame[6:8], htcCmdSetupComplete)
	w.HTCCommand(frame)

	if w.boot != wifiBootWMI {
		t.Error("HTC setup-complete should advance the chip to the WMI phase")
	}
	if len(w.eventOut) != 2 {
		t.Fatalf("HTC setup-complete should stage a ready event and a regdomain event, got %d frames", len(w.eventOut))
	}
}

func TestWifi_WMIConnectRequiresMatchingBSSID(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	advanceToWMI(w)

	payload := make([]byte, 8+32+2+6+4)
	payload[0], payload[1], payload[2], payload[3], payload[5] = 1, 1, 1, 1, 1
	copy(payload[8+32+2:8+32+2+6], []byte{1, 2, 3, 4, 5, 6}) // wrong BSSID

	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint16(frame[6:8], wmiCmdConnect)
	copy(frame[8:], payload)
	w.WMICommand(frame)

	if w.connectionStatus {
		t.Error("connect should be rejected when the BSSID does not match the access point")
	}
}

func TestWifi_WMIConnectSucceedsAgainstAPMac(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	advanceToWMI(w)

	payload := make([]byte, 8+32+2+6+4)
	payload[0], payload[1], payload[2], payload[3], payload[5] = 1, 1, 1, 1, 1
	copy(payload[8+32+2:8+32+2+6], w.apMac[:])

	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint16(frame[6:8], wmiCmdConnect)
	copy(frame[8:], payload)
	w.WMICommand(frame)

	if !w.connectionStatus {
		t.Fatal("connect should succeed when the BSSID matches the access point")
	}
	if len(w.eventOut) == 0 {
		t.Error("a successful connect should stage a connect-result event")
	}
}

type lanLoopbackPlatform struct {
	fakePlatform
	inbound [][]byte
	sent    [][]byte
}

func (p *lanLoopbackPlatform) LANRecv() ([]byte, bool) {
	if len(p.inbound) == 0 {
		return nil, false
	}
	f := p.inbound[0]
	p.inbound = p.inbound[1:]
	return f, true
}
func (p *lanLoopbackPlatform) LANSend(frame []byte) bool {
	p.sent = append(p.sent, frame)
	return true
}

func connectedWifiDevice(plat Platform) *WifiDevice {
	w := newWifiDevice(plat, &fakeIRQ{}, nopLogger{})
	advanceToWMI(w)
	w.connectionStatus = true
	return w
}

func TestWifi_CheckRXAcceptsOwnMACAndBroadcast(t *testing.T) {
	plat := &lanLoopbackPlatform{}
	w := connectedWifiDevice(plat)

	toUs := make([]byte, 14+4)
	copy(toUs[0:6], w.macAddr[:])
	copy(toUs[6:12], []byte{9, 9, 9, 9, 9, 9})
	plat.inbound = append(plat.inbound, toUs)
	w.checkRX()
	if len(w.eventOut) == 0 {
		t.Error("a frame addressed to our own MAC should be staged")
	}

	w.eventOut = nil
	broadcast := make([]byte, 14+4)
	for i := 0; i < 6; i++ {
		broadcast[i] = 0xFF
	}
	copy(broadcast[6:12], []byte{9, 9, 9, 9, 9, 9})
	plat.inbound = append(plat.inbound, broadcast)
	w.checkRX()
	if len(w.eventOut) == 0 {
		t.Error("a broadcast frame should be staged")
	}
}

func TestWifi_CheckRXDropsForeignUnicastAndOwnLoopback(t *testing.T) {
	plat := &lanLoopbackPlatform{}
	w := connectedWifiDevice(plat)

	foreign := make([]byte, 14+4)
	copy(foreign[0:6], []byte{1, 2, 3, 4, 5, 6})
	copy(foreign[6:12], []byte{9, 9, 9, 9, 9, 9})
	plat.inbound = append(plat.inbound, foreign)
	w.checkRX()
	if len(w.eventOut) != 0 {
		t.Error("a frame addressed to a different MAC should be dropped")
	}

	loopback := make([]byte, 14+4)
	copy(loopback[0:6], w.macAddr[:])
	copy(loopback[6:12], w.macAddr[:])
	plat.inbound = append(plat.inbound, loopback)
	w.checkRX()
	if len(w.eventOut) != 0 {
		t.Error("a frame sourced from our own MAC should be dropped as a loopback of our own send")
	}
}

func TestWifi_DataFrameRequiresLLCHeader(t *testing.T) {
	plat := &lanLoopbackPlatform{}
	w := connectedWifiDevice(plat)

	payload := make([]byte, 12+4+2+2)
	copy(payload[0:6], []byte{1, 2, 3, 4, 5, 6})
	copy(payload[6:12], w.macAddr[:])
	binary.LittleEndian.PutUint16(payload[12:14], 2)
	// bad LLC header (zeroed)
	w.sendDataFrame(payload)
	if len(plat.sent) != 0 {
		t.Error("a data frame with a bad LLC header should not be forwarded")
	}
}

func TestWifi_DataFrameForwardsValidLLCPacket(t *testing.T) {
	plat := &lanLoopbackPlatform{}
	w := connectedWifiDevice(plat)

	body := []byte{0xAA, 0xBB}
	payload := make([]byte, 12+2+4+2+2+len(body))
	copy(payload[0:6], []byte{1, 2, 3, 4, 5, 6})
	copy(payload[6:12], w.macAddr[:])
	binary.LittleEndian.PutUint16(payload[12:14], uint16(len(body)+8))
	binary.LittleEndian.PutUint32(payload[14:18], 0xAAAA0003)
	binary.LittleEndian.PutUint16(payload[18:20], 0x0000)
	copy(payload[20:22], []byte{0x08, 0x00})
	copy(payload[22:], body)

	w.sendDataFrame(payload)
	if len(plat.sent) != 1 {
		t.Fatalf("expected one forwarded frame, got %d", len(plat.sent))
	}
	if plat.sent[0][12] != 0x08 || plat.sent[0][13] != 0x00 {
		t.Error("forwarded frame should preserve the ethertype")
	}
}

func TestWifi_ExtendedHeartbeatRepliesOnHeartbeatEvent(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	advanceToWMI(w)

	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], wmiExtHeartbeat)
	binary.LittleEndian.PutUint32(payload[4:8], 0x1234)
	binary.LittleEndian.PutUint32(payload[8:12], 0x5678)

	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint16(frame[6:8], wmiCmdExtended)
	copy(frame[8:], payload)
	w.WMICommand(frame)

	if len(w.eventOut) == 0 {
		t.Fatal("heartbeat extended command should stage a reply event")
	}
}

func TestWifi_TickDispatchesQueuedCommandThroughBootPhase(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	cmd := make([]byte, 4)
	binary.LittleEndian.PutUint32(cmd, bmiDone)
	w.EnqueueMailbox(0, cmd)
	w.Tick()
	if w.boot != wifiBootHTC {
		t.Error("Tick should dispatch the queued BMI_DONE command and advance to the HTC phase")
	}
}

func TestWifi_BeaconGeneratedWhileScanning(t *testing.T) {
	w := newWifiDevice(&fakePlatform{}, &fakeIRQ{}, nopLogger{})
	advanceToWMI(w)
	w.scanActive = true
	w.beaconTimer = wifiBeaconIntervalTicks - 1

	w.Tick()
	if len(w.eventOut) == 0 {
		t.Error("a beacon BSS-info event should be staged once the beacon interval elapses")
	}
}
