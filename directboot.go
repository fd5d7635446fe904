package dsi

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// DirectBootInfo carries everything the boot loader needs from the
// cartridge/header and the frontend that the NDS base does not already
// own (§4.10).
type DirectBootInfo struct {
	Header       []byte
	SecureArea   []byte
	ARM9RAMAddr  uint32
	ARM7RAMAddr  uint32
	ARM9Entry    uint32
	ARM7Entry    uint32
	IsDSiWare    bool
	ModcryptArea [2]struct {
		Offset uint32
		Size   uint32
	}
}

// directBootSecureAreaKeyY is the fixed keyY mixed with the per-cart
// gamecode-derived keyX to decrypt the DS cartridge secure area on the
// direct-boot DS-compat path (§4.10.1), following the same keyslot table
// the AES engine uses elsewhere.
var directBootSecureAreaKeyY = [16]byte{
	0x02, 0xFF, 0x7F, 0x5A, 0xBA, 0xA3, 0x4D, 0x5F,
	0x07, 0xFD, 0x40, 0xA1, 0xAE, 0xCC, 0x8C, 0x2D,
}

// DirectBootDSCompat implements the legacy NDS direct-boot path: copy the
// cart header/secure area into RAM and program the CPU entry points
// without touching any DSi-only register (§4.10.1).
func (c *DSi) DirectBootDSCompat(info DirectBootInfo, gameCode uint32) error {
	if len(info.Header) < 0x170 {
		return ErrBadNandFooter
	}

	var keyX [16]byte
	binary.LittleEndian.PutUint32(keyX[0:4], gameCode)
	binary.LittleEndian.PutUint32(keyX[4:8], gameCode)
	binary.LittleEndian.PutUint32(keyX[8:12], gameCode>>1)
	binary.LittleEndian.PutUint32(keyX[12:16], gameCode<<1)
	key := deriveNormalKey(keyX, directBootSecureAreaKeyY)

	secure := make([]byte, len(info.SecureArea))
	copy(secure, info.SecureArea)
	if block, err := aes.NewCipher(key[:]); err == nil && len(secure) >= 16 {
		var iv [16]byte
		dec := cipher.NewCBCDecrypter(block, iv[:])
		n := len(secure) - (len(secure) % 16)
		dec.CryptBlocks(secure[:n], secure[:n])
	}

	for i, b := range info.Header {
		c.writeARM9Byte(info.ARM9RAMAddr+uint32(i), b)
	}
	for i, b := range secure {
		c.writeARM9Byte(0x027FFE00+uint32(i), b)
	}

	c.bootCPU(ARM9, info.ARM9Entry)
	c.bootCPU(ARM7, info.ARM7Entry)
	return nil
}

// DirectBootDSi implements the DSi-mode direct-boot path: load the MBK
// banking blob, copy the shared/system NAND blocks, decrypt any modcrypt
// region, and only then hand off to the same ARM9/ARM7 entry-point
// programming the DS-compat path uses (§4.10.2, §4.10.3).
func (c *DSi) DirectBootDSi(info DirectBootInfo, mbkBlob [20]byte) error {
	c.applyMBKBlob(mbkBlob)

	if info.IsDSiWare {
		if err := c.copyNANDSharedBlocks(); err != nil {
			return err
		}
	}

	for i, region := range info.ModcryptArea {
		if region.Size == 0 {
			continue
		}
		if err := c.decryptModcryptRegion(region.Offset, region.Size, i); err != nil {
			return err
		}
	}

	for i, b := range info.Header {
		c.writeARM9Byte(info.ARM9RAMAddr+uint32(i), b)
	}

	c.bootCPU(ARM9, info.ARM9Entry)
	c.bootCPU(ARM7, info.ARM7Entry)
	return nil
}

// applyMBKBlob programs NWRAM banking from a flat 20-byte blob (§4.10.2
// "MBK blob"): blob[0:4] sets bank-A slots 0-3, blob[4:8] sets bank-B
// slots 0-3, and blob[8:20] sets ARM9's three window registers. Bank-B
// slots 4-7, bank C, ARM7's windows and MBK8 are not written.
func (c *DSi) applyMBKBlob(blob [20]byte) {
	for window := 0; window < 2; window++ {
		for num := 0; num < 4; num++ {
			slot := window*4 + num
			if slot >= 8 {
				break
			}
			c.NWRAM.WriteMBKSlot(window, num, blob[slot])
		}
	}
	for window := 0; window < 3; window++ {
		val := binary.LittleEndian.Uint32(blob[8+window*4 : 12+window*4])
		c.NWRAM.WriteRange(ARM9, window, val)
	}
}

// decryptModcryptRegion applies AES-CTR over one modcrypt-flagged region
// of already-loaded ARM9 memory using key slot 0 ("Nintendo" + header
// material), per §4.10.3. idx selects which of the two modcrypt regions
// (ARM9/ARM7) is being processed; it is written big-endian into the last
// four bytes of an otherwise zero CTR IV, and both regions use slot 0.
func (c *DSi) decryptModcryptRegion(offset, size uint32, idx int) error {
	if uint64(offset)+uint64(size) > uint64(len(c.mainRAM)) {
		return ErrModcryptOutOfRange
	}
	key := c.AES.KeyNormal[0]
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}
	var iv [16]byte
	binary.BigEndian.PutUint32(iv[12:16], uint32(idx))
	stream := cipher.NewCTR(block, iv[:])
	region := c.mainRAM[offset : offset+size]
	stream.XORKeyStream(region, region)
	return nil
}

// copyNANDSharedBlocks copies the NAND's shared-font/shared2 system blocks
// into main RAM ahead of a DSiWare title launch (§4.10.2).
func (c *DSi) copyNANDSharedBlocks() error {
	if c.NAND == nil || len(c.NAND.image) == 0 {
		return ErrCartMissing
	}
	const sharedBlockSector = 0x80
	const sharedBlockCount = 0x10
	const dstAddr = 0x02FFC000
	buf := make([]byte, nandSectorSize)
	for i := 0; i < sharedBlockCount; i++ {
		if err := c.NAND.ReadSector(sharedBlockSector+uint32(i), buf); err != nil {
			return err
		}
		for j, b := range buf {
			c.writeARM9Byte(dstAddr+uint32(i)*nandSectorSize+uint32(j), b)
		}
	}
	return nil
}
