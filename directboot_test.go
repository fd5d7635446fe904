package dsi

import "testing"

func TestDirectBootDSCompat_CopiesHeaderAndSecureArea(t *testing.T) {
	c := newTestDSi()

	header := make([]byte, 0x170)
	header[0] = 0xAB
	secure := make([]byte, 16)
	for i := range secure {
		secure[i] = byte(i)
	}

	info := DirectBootInfo{
		Header:      header,
		SecureArea:  secure,
		ARM9RAMAddr: 0x02000000,
		ARM9Entry:   0x02004000,
		ARM7Entry:   0x02380000,
	}

	if err := c.DirectBootDSCompat(info, 0x12345678); err != nil {
		t.Fatalf("DirectBootDSCompat failed: %v", err)
	}
	if c.mainRAM[0] != 0xAB {
		t.Error("cart header should be copied to the ARM9 RAM address")
	}
	secureAddr := uint32(0x027FFE00 - 0x02000000)
	if c.mainRAM[secureAddr] == secure[0] {
		t.Error("secure area should be CBC-decrypted in place, not copied verbatim")
	}
}

func TestDirectBootDSCompat_RejectsShortHeader(t *testing.T) {
	c := newTestDSi()
	info := DirectBootInfo{Header: make([]byte, 0x10)}
	if err := c.DirectBootDSCompat(info, 0); err == nil {
		t.Error("a header shorter than 0x170 bytes should be rejected")
	}
}

func TestDirectBootDSi_AppliesMBKBlobAndHeader(t *testing.T) {
	c := newTestDSi()

	var blob [20]byte
	blob[0] = 0x84 // window A slot 0
	for i := 8; i < 20; i += 4 {
		blob[i] = 0x01
	}

	header := make([]byte, 0x170)
	header[5] = 0xCD
	info := DirectBootInfo{
		Header:      header,
		ARM9RAMAddr: 0x02000000,
		ARM9Entry:   0x02004000,
		ARM7Entry:   0x02380000,
	}

	if err := c.DirectBootDSi(info, blob); err != nil {
		t.Fatalf("DirectBootDSi failed: %v", err)
	}
	if c.NWRAM.mbk[0][0] != 0x84 {
		t.Errorf("MBK slot A0 = %#02x, want 0x84 after applying the boot blob", c.NWRAM.mbk[0][0])
	}
	if c.mainRAM[5] != 0xCD {
		t.Error("header bytes should be copied into ARM9 RAM")
	}
}

func TestDirectBootDSi_CopiesSharedNANDBlocksForDSiWare(t *testing.T) {
	c := newTestDSi()
	image := buildTestNANDImage(t, 0x100, 0x1122334455667788)
	if err := c.LoadNAND(image); err != nil {
		t.Fatalf("LoadNAND failed: %v", err)
	}

	info := DirectBootInfo{
		Header:      make([]byte, 0x170),
		ARM9RAMAddr: 0x02000000,
		IsDSiWare:   true,
		ARM9Entry:   0x02004000,
		ARM7Entry:   0x02380000,
	}
	if err := c.DirectBootDSi(info, [20]byte{}); err != nil {
		t.Fatalf("DirectBootDSi failed for a DSiWare title: %v", err)
	}
}
