package dsi

import (
	"encoding/binary"
	"testing"
)

// buildTestNANDImage builds a NAND image with a real-format 64-byte
// footer: the ASCII tag, a synthetic eMMC CID, and a console ID, placed
// at the end of the image.
func buildTestNANDImage(t *testing.T, sectors int, consoleID uint64) []byte {
	t.Helper()
	image := make([]byte, sectors*nandSectorSize)
	footer := image[len(image)-nandFooterSize:]
	copy(footer[0:16], nandFooterTag[:])
	for i := 0; i < 16; i++ {
		footer[16+i] = byte(consoleID) ^ byte(i*13)
	}
	binary.LittleEndian.PutUint64(footer[32:40], consoleID)
	return image
}

func TestNAND_SectorRoundTrip(t *testing.T) {
	n := newNAND(nopLogger{})
	image := buildTestNANDImage(t, 4, 0x0011223344556677)
	if err := n.Load(image); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	payload := make([]byte, nandSectorSize)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	if err := n.WriteSector(2, payload); err != nil {
		t.Fatalf("WriteSector failed: %v", err)
	}
	readBack := make([]byte, nandSectorSize)
	if err := n.ReadSector(2, readBack); err != nil {
		t.Fatalf("ReadSector failed: %v", err)
	}
	for i := range payload {
		if readBack[i] != payload[i] {
			t.Fatalf("sector round-trip mismatch at byte %d: got %#02x want %#02x", i, readBack[i], payload[i])
		}
	}
}

func TestNAND_SectorsAreEncryptedAtRest(t *testing.T) {
	n := newNAND(nopLogger{})
	image := buildTestNANDImage(t, 4, 0x0011223344556677)
	if err := n.Load(image); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	payload := make([]byte, nandSectorSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	if err := n.WriteSector(0, payload); err != nil {
		t.Fatalf("WriteSector failed: %v", err)
	}
	if string(image[0:nandSectorSize]) == string(payload) {
		t.Error("sector 0 should not be stored in the clear; the real format has no plaintext partition table")
	}
}

func TestNAND_LoadRejectsMissingFooterTag(t *testing.T) {
	n := newNAND(nopLogger{})
	image := make([]byte, 4*nandSectorSize)
	if err := n.Load(image); err == nil {
		t.Error("expected an error loading an image with no recognizable footer tag")
	}
}

func TestNAND_LoadFindsFallbackFooterOffset(t *testing.T) {
	n := newNAND(nopLogger{})
	image := make([]byte, nandFooterFallbackOffset+16+16+8)
	copy(image[nandFooterFallbackOffset:], nandFooterTag[:])
	binary.LittleEndian.PutUint64(image[nandFooterFallbackOffset+32:nandFooterFallbackOffset+40], 0x42)
	if err := n.Load(image); err != nil {
		t.Fatalf("Load should find the footer at the fixed fallback offset: %v", err)
	}
	if n.consoleID != 0x42 {
		t.Fatalf("consoleID = %#x, want 0x42", n.consoleID)
	}
}

func TestNAND_LoadRejectsTooShortImage(t *testing.T) {
	n := newNAND(nopLogger{})
	if err := n.Load(make([]byte, 4)); err == nil {
		t.Error("expected an error loading an image shorter than the footer")
	}
}

func TestNAND_DeriveKeysAreConsoleIDDependent(t *testing.T) {
	a := newNAND(nopLogger{})
	if err := a.Load(buildTestNANDImage(t, 4, 0x0011223344556677)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	b := newNAND(nopLogger{})
	if err := b.Load(buildTestNANDImage(t, 4, 0xFFEEDDCCBBAA9988)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if a.fatKey == b.fatKey {
		t.Error("fatKey should depend on the console ID from the NAND footer")
	}
	if a.fatIV == b.fatIV {
		t.Error("fatIV should depend on the eMMC CID from the NAND footer")
	}
}

func TestNAND_SectorIVAdvancesByBlockCount(t *testing.T) {
	n := newNAND(nopLogger{})
	if err := n.Load(buildTestNANDImage(t, 4, 0x0011223344556677)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	iv0 := n.sectorCTRIV(0)
	iv1 := n.sectorCTRIV(1)
	if iv0 == iv1 {
		t.Error("consecutive sectors must use different CTR IVs")
	}
	// sector 1 starts 512 bytes = 32 AES blocks after sector 0.
	want := add128(iv0, [16]byte{15: 32})
	if iv1 != want {
		t.Errorf("sectorCTRIV(1) = %x, want %x", iv1, want)
	}
}
