package dsi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// NAND implements host access to the DSi's internal NAND image: footer
// parsing for the console ID and the FAT CTR IV, per-sector AES-CTR
// transparent decryption, a minimal FAT16 mount of the one fixed user
// partition, and the ES title-key CCM wrapper (§4.5). File handling
// follows the same bounds-checked, validated host access used elsewhere;
// the FAT walk is a small purpose-built parser rather than a full driver.

const (
	nandSectorSize = 512

	// nandFooterSize is the trailing region holding the footer tag plus the
	// eMMC CID and console ID that follow it (§4.5 "Footer").
	nandFooterSize = 0x40
	nandFooterFallbackOffset = 0x000FF800

	// nandFATPartitionOffset is the fixed byte offset of the single user
	// FAT16 partition; unlike a generic MBR this is a hardwired constant,
	// not something read out of a partition table (§4.5 "Partitions").
	nandFATPartitionOffset = 0x0010EE00
)

var nandFooterTag = [16]byte{'D', 'S', 'i', ' ', 'e', 'M', 'M', 'C', ' ', 'C', 'I', 'D', '/', 'C', 'P', 'U'}

// NAND owns the raw image bytes and the derived per-sector crypto state.
type NAND struct {
	image     []byte
	consoleID uint64
	emmcCID   [16]byte
	fatIV     [16]byte
	fatKey    [16]byte
	esKey     [16]byte

	fatPartStart uint32

	log Logger
}

// NANDFooter is the trailer melonDS reads to recover the eMMC CID and the
// console ID (§4.5 "Footer").
type NANDFooter struct {
	EMMCCID   [16]byte
	ConsoleID uint64
}

func newNAND(log Logger) *NAND {
	return &NAND{log: log}
}

// Load parses a raw NAND image: the footer tag, searched at the end of the
// image and, failing that, at a fixed fallback offset, followed by the
// eMMC CID and console ID it prefixes (§4.5, §6).
func (n *NAND) Load(image []byte) error {
	tagOff, ok := n.findFooterTag(image)
	if !ok {
		return ErrBadNandFooter
	}
	if tagOff+16+16+8 > len(image) {
		return ErrBadNandFooter
	}
	rest := image[tagOff+16:]
	var cid [16]byte
	copy(cid[:], rest[0:16])
	consoleID := binary.LittleEndian.Uint64(rest[16:24])

	n.image = image
	n.emmcCID = cid
	n.consoleID = consoleID
	n.fatIV = n.computeFatIV(cid)
	n.deriveKeys()
	n.fatPartStart = nandFATPartitionOffset / nandSectorSize
	return nil
}

// findFooterTag locates the footer tag at the end of the image, falling
// back to the fixed absolute offset older/resized images keep it at
// (§4.5 "Footer").
func (n *NAND) findFooterTag(image []byte) (int, bool) {
	if len(image) >= nandFooterSize {
		off := len(image) - nandFooterSize
		if bytesEqual16(image[off:off+16], nandFooterTag) {
			return off, true
		}
	}
	if len(image) >= nandFooterFallbackOffset+16 {
		off := nandFooterFallbackOffset
		if bytesEqual16(image[off:off+16], nandFooterTag) {
			return off, true
		}
	}
	return 0, false
}

func bytesEqual16(b []byte, tag [16]byte) bool {
	for i := 0; i < 16; i++ {
		if b[i] != tag[i] {
			return false
		}
	}
	return true
}

// computeFatIV derives the FAT sector crypto's base IV: a full byte-order
// reversal of the first 16 bytes of SHA-1(eMMC CID) (§4.5 "Sector crypto").
func (n *NAND) computeFatIV(cid [16]byte) [16]byte {
	digest := sha1.Sum(cid[:])
	var first16 [16]byte
	copy(first16[:], digest[0:16])
	return swap16(first16)
}

// deriveKeys computes the fixed fat_key (keyX slot 3, console-fixed keyY)
// and the es_key used for ES title-key CCM, both via the shared normal-key
// derivation formula (§3, §4.5). NAND derives these independently of the
// AES engine's own key-slot table, since the two are separate hardware
// register files that happen to share the derivation function.
func (n *NAND) deriveKeys() {
	var keyX [16]byte
	putBE32(keyX[0:4], uint32(n.consoleID))
	putBE32(keyX[4:8], uint32(n.consoleID)^0x24EE6906)
	putBE32(keyX[8:12], uint32(n.consoleID>>32)^0xE65B601D)
	putBE32(keyX[12:16], uint32(n.consoleID>>32))

	var keyY [16]byte
	putBE32(keyY[0:4], 0x0AB9DC76)
	putBE32(keyY[4:8], 0xBD4DC4D3)
	putBE32(keyY[8:12], 0x202DDD1D)
	putBE32(keyY[12:16], 0xE1A00005)

	n.fatKey = deriveNormalKey(keyX, keyY)

	// es_key mixes the same dev-keypair keyX used by AES key slot 1 with an
	// externally-provided (per-ticket) keyY; in the absence of a loaded
	// ticket this defaults to the all-zero keyY, matching an unpersonalized
	// ticket (§4.5 "ES key").
	var esKeyX [16]byte
	putBE32(esKeyX[0:4], 0x4E00004A)
	putBE32(esKeyX[4:8], 0x4A00004E)
	putBE32(esKeyX[8:12], uint32(n.consoleID>>32)^0xC80C4B72)
	putBE32(esKeyX[12:16], uint32(n.consoleID))
	n.esKey = deriveNormalKey(esKeyX, [16]byte{})
}

// SetESTitleKeyY overrides es_key's derivation with a ticket-specific keyY
// once a title ticket has actually been loaded (§4.5 "ES key").
func (n *NAND) SetESTitleKeyY(keyY [16]byte) {
	var esKeyX [16]byte
	putBE32(esKeyX[0:4], 0x4E00004A)
	putBE32(esKeyX[4:8], 0x4A00004E)
	putBE32(esKeyX[8:12], uint32(n.consoleID>>32)^0xC80C4B72)
	putBE32(esKeyX[12:16], uint32(n.consoleID))
	n.esKey = deriveNormalKey(esKeyX, keyY)
}

// sectorCTRIV builds the per-sector CTR IV: fatIV plus the sector's
// absolute byte offset divided by the AES block size, added as a 128-bit
// big-endian counter with carry propagating into the higher bytes (§4.5
// "Sector crypto").
func (n *NAND) sectorCTRIV(sector uint32) [16]byte {
	var ctr [16]byte
	binary.BigEndian.PutUint32(ctr[12:16], sector<<5) // (sector*512)>>4
	return add128(n.fatIV, ctr)
}

// ReadSector returns one decrypted 512-byte sector. Every sector outside
// the footer region is AES-CTR encrypted under fatKey; there is no
// plaintext partition table (§4.5).
func (n *NAND) ReadSector(sector uint32, dst []byte) error {
	off := uint64(sector) * nandSectorSize
	if off+nandSectorSize > uint64(len(n.image)) {
		return fmt.Errorf("dsi: NAND sector %d out of range: %w", sector, ErrBadNandFooter)
	}
	copy(dst, n.image[off:off+nandSectorSize])

	block, err := aes.NewCipher(n.fatKey[:])
	if err != nil {
		return err
	}
	iv := n.sectorCTRIV(sector)
	stream := cipher.NewCTR(block, iv[:])
	stream.XORKeyStream(dst, dst)
	return nil
}

// WriteSector encrypts src under fatKey and stores it back into the image
// (§4.5).
func (n *NAND) WriteSector(sector uint32, src []byte) error {
	off := uint64(sector) * nandSectorSize
	if off+nandSectorSize > uint64(len(n.image)) {
		return fmt.Errorf("dsi: NAND sector %d out of range: %w", sector, ErrBadNandFooter)
	}
	block, err := aes.NewCipher(n.fatKey[:])
	if err != nil {
		return err
	}
	iv := n.sectorCTRIV(sector)
	stream := cipher.NewCTR(block, iv[:])
	buf := make([]byte, nandSectorSize)
	stream.XORKeyStream(buf, src)
	copy(n.image[off:off+nandSectorSize], buf)
	return nil
}

// fatEntry is one resolved directory entry from the minimal FAT16 walk.
type fatEntry struct {
	Name        string
	StartSector uint32
	SizeBytes   uint32
	IsDir       bool
}

// fatVolume is a minimal read path over one FAT16 partition: enough to
// enumerate the root directory and locate each entry's first sector
// (§4.5). Cluster chains are not followed.
type fatVolume struct {
	nand         *NAND
	partStart    uint32
	bytesPerSec  uint16
	secPerClus   uint8
	reservedSecs uint16
	numFats      uint8
	rootEntries  uint16
	fatSize      uint16
	rootDirSec   uint32
	dataStartSec uint32
}

// MountFAT opens the fixed user-data FAT16 partition (§4.5 "Partitions").
func (n *NAND) MountFAT() (*fatVolume, error) {
	return n.mountFAT(n.fatPartStart)
}

func (n *NAND) mountFAT(partStart uint32) (*fatVolume, error) {
	var boot [512]byte
	if err := n.ReadSector(partStart, boot[:]); err != nil {
		return nil, err
	}
	v := &fatVolume{
		nand:         n,
		partStart:    partStart,
		bytesPerSec:  binary.LittleEndian.Uint16(boot[11:13]),
		secPerClus:   boot[13],
		reservedSecs: binary.LittleEndian.Uint16(boot[14:16]),
		numFats:      boot[16],
		rootEntries:  binary.LittleEndian.Uint16(boot[17:19]),
		fatSize:      binary.LittleEndian.Uint16(boot[22:24]),
	}
	if v.bytesPerSec != nandSectorSize {
		return nil, fmt.Errorf("dsi: unsupported FAT sector size %d", v.bytesPerSec)
	}
	v.rootDirSec = partStart + uint32(v.reservedSecs) + uint32(v.numFats)*uint32(v.fatSize)
	rootDirSecs := (uint32(v.rootEntries)*32 + nandSectorSize - 1) / nandSectorSize
	v.dataStartSec = v.rootDirSec + rootDirSecs
	return v, nil
}

// ReadRootDir enumerates the 32-byte directory entries in the partition's
// fixed root directory region (§4.5).
func (v *fatVolume) ReadRootDir() ([]fatEntry, error) {
	var entries []fatEntry
	rootDirSecs := (uint32(v.rootEntries)*32 + nandSectorSize - 1) / nandSectorSize
	buf := make([]byte, nandSectorSize)
	for s := uint32(0); s < rootDirSecs; s++ {
		if err := v.nand.ReadSector(v.rootDirSec+s, buf); err != nil {
			return nil, err
		}
		for off := 0; off+32 <= len(buf); off += 32 {
			raw := buf[off : off+32]
			if raw[0] == 0x00 {
				return entries, nil
			}
			if raw[0] == 0xE5 || raw[11]&0x08 != 0 {
				continue
			}
			name := trimFATName(raw[0:11])
			cluster := binary.LittleEndian.Uint16(raw[26:28])
			size := binary.LittleEndian.Uint32(raw[28:32])
			entries = append(entries, fatEntry{
				Name:        name,
				StartSector: v.dataStartSec + (uint32(cluster)-2)*uint32(v.secPerClus),
				SizeBytes:   size,
				IsDir:       raw[11]&0x10 != 0,
			})
		}
	}
	return entries, nil
}

func trimFATName(raw []byte) string {
	name := make([]byte, 0, 12)
	for i := 0; i < 8 && raw[i] != ' '; i++ {
		name = append(name, raw[i])
	}
	if raw[8] != ' ' {
		name = append(name, '.')
		for i := 8; i < 11 && raw[i] != ' '; i++ {
			name = append(name, raw[i])
		}
	}
	return string(name)
}

// ESDecryptTitleKey unwraps an encrypted ES title key using CCM-decrypt
// under es_key, mirroring the real ticket-verification step that direct
// boot and title launch both rely on (§4.5 "ES key").
func (n *NAND) ESDecryptTitleKey(encrypted, iv, mac [16]byte) ([16]byte, bool) {
	block, err := aes.NewCipher(n.esKey[:])
	if err != nil {
		return [16]byte{}, false
	}
	var ctr [16]byte
	ctr[0] = 0x02
	copy(ctr[1:13], iv[4:16])
	ctr[15] = 0x01
	var out [16]byte
	var ks [16]byte
	block.Encrypt(ks[:], ctr[:])
	out = xor128(encrypted, ks)

	a0 := ctr
	a0[0] = 0x02
	a0[13], a0[14], a0[15] = 0, 0, 0x10
	var tag [16]byte
	block.Encrypt(tag[:], a0[:])
	tag = xor128(tag, out)
	block.Encrypt(tag[:], tag[:])
	ctr[13], ctr[14], ctr[15] = 0, 0, 0
	var tagMask [16]byte
	block.Encrypt(tagMask[:], ctr[:])
	tag = xor128(tag, tagMask)

	return out, tag == mac
}
