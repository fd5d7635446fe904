package dsi

import (
	"crypto/aes"
)

// AES implements the DSi's CCM/CTR AES engine: input/output FIFOs, the
// four key slots with X/Y derivation, and the CCM-Enc/CCM-Dec/CTR block
// pipelines (§3, §4.3). AES-128 itself is treated as a black-box host
// primitive; this file is a thin register-file wrapper around stdlib
// crypto/aes, in the same wrapper-around-a-hardware-AES-block shape as
// usbarmory-tamago/imx6/dcp.go.

type aesMode int

const (
	aesModeCCMDecrypt aesMode = iota
	aesModeCCMEncrypt
	aesModeCTR1
	aesModeCTR2
)

const aesFifoDepth = 16

// AESEngine is the register-mapped AES block described by §4.3.
type AESEngine struct {
	Cnt    uint32
	BlkCnt uint32

	IV  [16]byte
	MAC [16]byte

	KeyNormal [4][16]byte
	KeyX      [4][16]byte
	KeyY      [4][16]byte

	CurKey [16]byte
	CurMAC [16]byte

	OutputMAC    [16]byte
	OutputMACDue bool

	mode      aesMode
	remExtra  uint32
	remBlocks uint32

	ctrCounter [16]byte
	block      interface {
		Encrypt(dst, src []byte)
	}

	inputFifo  []uint32
	outputFifo []uint32

	irq IRQController
	cpu CPU // which CPU's IRQ2 bank the engine raises on (ARM7)
	ndma *NDMAEngine
	log  Logger
}

func newAESEngine(irq IRQController, ndma *NDMAEngine, log Logger) *AESEngine {
	return &AESEngine{irq: irq, cpu: ARM7, ndma: ndma, log: log}
}

// Reset clears all engine state and reseeds the fixed key-X material for
// slots 0/1/3 from the console ID (§3).
func (e *AESEngine) Reset(consoleID uint64) {
	*e = AESEngine{irq: e.irq, cpu: e.cpu, ndma: e.ndma, log: e.log}

	// slot 0: modcrypt — literal "Nintendo", zero-padded.
	copy(e.KeyX[0][:], []byte("Nintendo"))

	// slot 1: dev keypair material.
	putBE32(e.KeyX[1][0:4], 0x4E00004A)
	putBE32(e.KeyX[1][4:8], 0x4A00004E)
	putBE32(e.KeyX[1][8:12], uint32(consoleID>>32)^0xC80C4B72)
	putBE32(e.KeyX[1][12:16], uint32(consoleID))

	// slot 3: console-unique eMMC crypto.
	putBE32(e.KeyX[3][0:4], uint32(consoleID))
	putBE32(e.KeyX[3][4:8], uint32(consoleID)^0x24EE6906)
	putBE32(e.KeyX[3][8:12], uint32(consoleID>>32)^0xE65B601D)
	putBE32(e.KeyX[3][12:16], uint32(consoleID>>32))
}

func putBE32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

// WriteKeyYWord writes one 32-bit word (big-endian on the wire) of a key
// slot's keyY and, on the last word, derives keyNormal (§3, §4.3).
func (e *AESEngine) WriteKeyYWord(slot, word int, val uint32) {
	putBE32(e.KeyY[slot][word*4:word*4+4], val)
	if word == 3 {
		e.KeyNormal[slot] = deriveNormalKey(e.KeyX[slot], e.KeyY[slot])
	}
}

// WriteCnt handles a write to the AES CNT register, including the 0->1
// start transition (§4.3 "Start sequence").
func (e *AESEngine) WriteCnt(val uint32) {
	wasStart := e.Cnt&(1<<31) != 0
	e.Cnt = val
	if !wasStart && val&(1<<31) != 0 {
		e.start()
	}
	if val&(1<<24) != 0 {
		slot := (val >> 26) & 0x3
		e.CurKey = e.KeyNormal[slot]
	}
}

func (e *AESEngine) modeFromCnt() aesMode {
	return aesMode((e.Cnt >> 28) & 0x3)
}

func (e *AESEngine) start() {
	e.mode = e.modeFromCnt()
	if e.mode > aesModeCTR2 {
		e.log.Warnf("AES: unknown mode %d", e.mode)
	}

	if e.mode == aesModeCCMDecrypt || e.mode == aesModeCCMEncrypt {
		e.remExtra = e.BlkCnt & 0xFFFF
	} else {
		e.remExtra = 0
	}
	e.remBlocks = (e.BlkCnt >> 16) & 0xFFFF

	block, err := aes.NewCipher(e.CurKey[:])
	if err != nil {
		e.log.Warnf("AES: bad key: %v", err)
		e.Cnt &^= 1 << 31
		return
	}
	e.block = block

	switch e.mode {
	case aesModeCCMDecrypt, aesModeCCMEncrypt:
		var ctr [16]byte
		ctr[0] = 0x02
		copy(ctr[1:13], e.IV[4:16])
		ctr[13], ctr[14] = 0x00, 0x00
		ctr[15] = 0x01
		e.ctrCounter = ctr

		macLen := (e.Cnt >> 16) & 0x7
		headerPresent := e.remExtra > 0
		flags := byte(0x02) | byte(macLen<<3)
		if headerPresent {
			flags |= 0x40
		}
		var a0 [16]byte
		a0[0] = flags
		copy(a0[1:13], e.IV[4:16])
		length := e.remBlocks << 4
		a0[13] = byte(length >> 16)
		a0[14] = byte(length >> 8)
		a0[15] = byte(length)
		e.CurMAC = a0
		block.Encrypt(e.CurMAC[:], e.CurMAC[:])
	case aesModeCTR1, aesModeCTR2:
		e.ctrCounter = e.IV
	}

	if e.remExtra == 0 && e.remBlocks == 0 {
		e.Cnt &^= 1 << 31
		return
	}
	if e.ndma != nil {
		e.ndma.Check(ARM7, NdmaStartAESInput)
	}
}

// nextKeystreamBlock encrypts the current CTR counter and increments it,
// matching the big-endian counter convention used throughout (§4.3).
func (e *AESEngine) nextKeystreamBlock() [16]byte {
	var ks [16]byte
	e.block.Encrypt(ks[:], e.ctrCounter[:])
	for i := 15; i >= 0; i-- {
		e.ctrCounter[i]++
		if e.ctrCounter[i] != 0 {
			break
		}
	}
	return ks
}

func wordsToBlock(words []uint32) [16]byte {
	var b [16]byte
	for i, w := range words {
		putBE32(b[i*4:i*4+4], w)
	}
	return b
}

func blockToWords(b [16]byte) [4]uint32 {
	var w [4]uint32
	for i := range w {
		w[i] = uint32(b[i*4])<<24 | uint32(b[i*4+1])<<16 | uint32(b[i*4+2])<<8 | uint32(b[i*4+3])
	}
	return w
}

// WriteInputFifo enqueues one 32-bit word; every four words form one block
// fed into the pipeline (§3, §4.3, §5 ordering guarantee).
func (e *AESEngine) WriteInputFifo(word uint32) {
	if len(e.inputFifo) >= aesFifoDepth {
		return
	}
	e.inputFifo = append(e.inputFifo, word)
	e.update()
}

// ReadOutputFifo dequeues one word, or (0, false) if empty.
func (e *AESEngine) ReadOutputFifo() (uint32, bool) {
	if len(e.outputFifo) == 0 {
		return 0, false
	}
	w := e.outputFifo[0]
	e.outputFifo = e.outputFifo[1:]
	if e.OutputMACDue && len(e.outputFifo) == 0 {
		mac := blockToWords(e.OutputMAC)
		e.outputFifo = append(e.outputFifo, mac[:]...)
		e.OutputMACDue = false
	}
	return w, true
}

const aesOutputBurstWords = 4

// update drains the input FIFO through the block pipeline as far as
// possible, implementing §4.3's "Block pipeline" and "Finalization".
func (e *AESEngine) update() {
	if e.block == nil {
		return
	}
	for e.remExtra > 0 && len(e.inputFifo) >= 4 {
		block := wordsToBlock(e.inputFifo[:4])
		e.inputFifo = e.inputFifo[4:]
		e.CurMAC = xor128(e.CurMAC, block)
		e.block.Encrypt(e.CurMAC[:], e.CurMAC[:])
		e.remExtra--
	}

	for e.remBlocks > 0 && len(e.inputFifo) >= 4 && len(e.outputFifo) <= 12 {
		d := wordsToBlock(e.inputFifo[:4])
		e.inputFifo = e.inputFifo[4:]

		var out [16]byte
		switch e.mode {
		case aesModeCCMDecrypt:
			ks := e.nextKeystreamBlock()
			out = xor128(d, ks)
			e.CurMAC = xor128(e.CurMAC, out)
			e.block.Encrypt(e.CurMAC[:], e.CurMAC[:])
		case aesModeCCMEncrypt:
			e.CurMAC = xor128(e.CurMAC, d)
			e.block.Encrypt(e.CurMAC[:], e.CurMAC[:])
			ks := e.nextKeystreamBlock()
			out = xor128(d, ks)
		case aesModeCTR1, aesModeCTR2:
			ks := e.nextKeystreamBlock()
			out = xor128(d, ks)
		}
		words := blockToWords(out)
		e.outputFifo = append(e.outputFifo, words[:]...)
		e.remBlocks--

		if uint32(len(e.outputFifo)) >= e.outputBurstWords() && e.ndma != nil {
			e.ndma.Check(ARM7, NdmaStartAESOutput)
		}
	}

	if e.remBlocks == 0 && e.remExtra == 0 && e.Cnt&(1<<31) != 0 {
		e.finish()
	}
}

func (e *AESEngine) outputBurstWords() uint32 {
	sizes := [4]uint32{4, 8, 12, 16}
	return sizes[(e.Cnt>>20)&0x3]
}

// finish applies §4.3's "Finalization".
func (e *AESEngine) finish() {
	e.ctrCounter[13], e.ctrCounter[14], e.ctrCounter[15] = 0, 0, 0
	var tagMAC [16]byte
	e.block.Encrypt(tagMAC[:], e.ctrCounter[:])
	e.CurMAC = xor128(e.CurMAC, tagMAC)

	switch e.mode {
	case aesModeCCMDecrypt:
		if swap16(e.CurMAC) == e.MAC {
			e.Cnt |= 1 << 21
		} else {
			e.Cnt &^= 1 << 21
		}
	case aesModeCCMEncrypt:
		e.OutputMAC = swap16(e.CurMAC)
		if len(e.outputFifo)+4 <= aesFifoDepth {
			words := blockToWords(e.OutputMAC)
			e.outputFifo = append(e.outputFifo, words[:]...)
		} else {
			e.OutputMACDue = true
		}
	}

	e.Cnt &^= 1 << 31
	if e.Cnt&(1<<30) != 0 {
		e.irq.RaiseIRQ(e.cpu, IRQ2DSiAES)
	}
	if e.ndma != nil {
		e.ndma.Check(ARM7, NdmaStartAESInput)
		if len(e.outputFifo) > 0 {
			e.ndma.Check(ARM7, NdmaStartAESOutput)
		}
	}
}
