package dsi

import "testing"

func newTestDSi() *DSi {
	return New(DSiArgs{
		Bus:       newFakeBus(),
		IRQ:       &fakeIRQ{},
		JIT:       &fakeJIT{},
		Scheduler: &fakeScheduler{},
		Platform:  &fakePlatform{},
		ConsoleID: 0x1122334455667788,
	})
}

type fakeScheduler struct {
	scheduled []EventID
}

func (f *fakeScheduler) Schedule(id EventID, periodic bool, delay int64, param uint32) {
	f.scheduled = append(f.scheduled, id)
}
func (f *fakeScheduler) Cancel(EventID) {}

type fakePlatform struct{}

func (*fakePlatform) Now() float64 { return 0 }
func (*fakePlatform) CameraFrame(int) ([]byte, int, int, bool) {
	return nil, 0, 0, false
}
func (*fakePlatform) LANSend([]byte) bool      { return false }
func (*fakePlatform) LANRecv() ([]byte, bool) { return nil, false }

func TestDSi_NewWiresEverySubsystem(t *testing.T) {
	c := newTestDSi()
	if c.NWRAM == nil || c.NDMA == nil || c.AES == nil || c.NAND == nil {
		t.Fatal("New should construct every core subsystem")
	}
	if c.I2C.devices[i2cDeviceBPTWL] == nil {
		t.Error("BPTWL should be attached to the I2C bus at reset")
	}
}

func TestDSi_ResetZeroesMainRAM(t *testing.T) {
	c := newTestDSi()
	c.mainRAM[0] = 0x42
	c.Reset()
	if c.mainRAM[0] != 0 {
		t.Error("Reset should clear main RAM")
	}
}

func TestDSi_SoftResetPreservesMainRAM(t *testing.T) {
	c := newTestDSi()
	c.mainRAM[100] = 0x7A
	c.SoftReset()
	if c.mainRAM[100] != 0x7A {
		t.Error("SoftReset must preserve main RAM contents")
	}
}

func TestDSi_SCFGGatesDSiIOWrites(t *testing.T) {
	c := newTestDSi()
	c.SCFG.Ext[ARM9] &^= scfgExtAccessEnable

	before := c.NWRAM.mbk[0][0]
	c.Write8(ARM9, ioMBKBase, 0x84)
	if c.NWRAM.mbk[0][0] != before {
		t.Error("MBK writes should be gated by SCFG access-enable")
	}

	c.SCFG.Ext[ARM9] |= scfgExtAccessEnable
	c.Write8(ARM9, ioMBKBase, 0x84)
	if c.NWRAM.mbk[0][0] == before {
		t.Error("MBK writes should succeed once access is enabled")
	}
}

func TestDSi_LoadNANDAttachesEMMCHost(t *testing.T) {
	c := newTestDSi()
	image := buildTestNANDImage(t, 8, 0x1122334455667788)
	if err := c.LoadNAND(image); err != nil {
		t.Fatalf("LoadNAND failed: %v", err)
	}
	if c.SDHostEMMC.card == nil {
		t.Error("LoadNAND should attach a card to the eMMC SD host")
	}
}
