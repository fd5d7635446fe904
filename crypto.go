package dsi

import "encoding/binary"

// swap16 reverses the byte order of a 16-byte block, converting between the
// big-endian wire representation used by the AES register file and the
// little-endian representation convenient for arithmetic (§4.3).
func swap16(b [16]byte) [16]byte {
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = b[15-i]
	}
	return out
}

// rol128Key is the 128-bit additive constant used by the key-normal
// derivation formula (§3, §4.3): F(X,Y) = ROL((X XOR Y) + C, 42).
//
// The source lists C byte-by-byte as
// FF FE FB 4E 29 59 02 58 2A 68 0F 5F 1A 4F 3E 79 but adds it as a
// little-endian integer indexed 15-i; add128 below treats its operands as
// big-endian, so the constant is stored here already reversed to match.
var rol128Key = [16]byte{
	0x79, 0x3E, 0x4F, 0x1A, 0x5F, 0x0F, 0x68, 0x2A,
	0x58, 0x02, 0x59, 0x29, 0x4E, 0xFB, 0xFE, 0xFF,
}

// add128 adds two 128-bit big-endian integers with carry, as used by both
// key derivation and NAND sector IV construction.
func add128(a, b [16]byte) [16]byte {
	var out [16]byte
	var carry uint16
	for i := 15; i >= 0; i-- {
		sum := uint16(a[i]) + uint16(b[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// rol128 rotates a 128-bit big-endian value left by n bits.
func rol128(v [16]byte, n uint) [16]byte {
	n %= 128
	if n == 0 {
		return v
	}
	var asInt [2]uint64
	asInt[0] = binary.BigEndian.Uint64(v[0:8])
	asInt[1] = binary.BigEndian.Uint64(v[8:16])
	hi, lo := asInt[0], asInt[1]
	var rhi, rlo uint64
	if n < 64 {
		rhi = (hi << n) | (lo >> (64 - n))
		rlo = (lo << n) | (hi >> (64 - n))
	} else {
		m := n - 64
		rhi = (lo << m) | (hi >> (64 - m))
		rlo = (hi << m) | (lo >> (64 - m))
	}
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], rhi)
	binary.BigEndian.PutUint64(out[8:16], rlo)
	return out
}

// xor128 XORs two 128-bit blocks.
func xor128(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// deriveNormalKey implements F(X,Y) = ROL((X XOR Y) + C, 42) (§3, §4.3,
// §4.5), the key-normal derivation shared by the AES engine's keyslots and
// the NAND image's FAT/ES keys.
func deriveNormalKey(keyX, keyY [16]byte) [16]byte {
	mixed := add128(xor128(keyX, keyY), rol128Key)
	return rol128(mixed, 42)
}
