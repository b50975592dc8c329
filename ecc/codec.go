// Package ecc implements the SEC-DED (single-error-correct, double-error-
// detect) code protecting 64-bit data words, and the service layer that
// turns decode outcomes into memory fault reports.
//
// The code is a Hamming(72,64): seven syndrome bits plus one overall parity
// bit. Codeword positions run 1..71 with the syndrome check bits at the
// power-of-two positions and the 64 data bits at the rest, so a nonzero
// syndrome is the codeword position of a single flipped bit.
package ecc

import "math/bits"

// ErrorClass classifies the outcome of one decode.
type ErrorClass int

const (
	// ClassNone means data and check code agree.
	ClassNone ErrorClass = iota
	// ClassSingleBit means exactly one bit was flipped and, when it was a
	// data bit, has been corrected.
	ClassSingleBit
	// ClassMultiBit means an even number of bit flips was detected. The
	// data is returned unchanged; guessing a correction is never safe.
	ClassMultiBit
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassSingleBit:
		return "single-bit"
	case ClassMultiBit:
		return "multi-bit"
	default:
		return "unknown"
	}
}

// Result describes the error classification of one decode.
type Result struct {
	Class ErrorClass
	// Pos is the corrected data bit, 1 (least significant) through 64,
	// when a single-bit error landed in the data word. It is 0 when no
	// data bit was changed: clean decode, an error inside the check code
	// itself, or a multi-bit detection.
	Pos int
}

const (
	checkBits    = 7
	dataBits     = 64
	codewordBits = 71 // check + data positions, 1..71
)

var (
	// synMask[j] selects the data bits participating in syndrome bit j.
	synMask [checkBits]uint64
	// posData[p] is the data bit (1..64) stored at codeword position p,
	// or 0 when p is a check-bit position.
	posData [codewordBits + 1]int
)

func init() {
	k := 0
	for p := 1; p <= codewordBits; p++ {
		if p&(p-1) == 0 {
			continue // check bit lives here
		}
		posData[p] = k + 1
		for j := 0; j < checkBits; j++ {
			if p&(1<<j) != 0 {
				synMask[j] |= 1 << k
			}
		}
		k++
	}
}

// Encode derives the 8-bit check code for a data word: syndrome bits in
// bits 0..6, overall parity in bit 7. Encode is a pure function, linear
// over XOR, and maps the all-zeros word to 0x00 and the all-ones word to
// 0xFF. Safe from any context.
func Encode(data uint64) uint8 {
	var check uint8
	for j := 0; j < checkBits; j++ {
		check |= uint8(bits.OnesCount64(data&synMask[j])&1) << j
	}
	// The parity bit makes the total weight of data plus check code even.
	check |= uint8((bits.OnesCount64(data)+bits.OnesCount8(check))&1) << 7
	return check
}

// Decode validates a (data, check) pair and returns the corrected word
// together with its error classification. Decode never corrects more than
// one bit: an even number of flips is reported as ClassMultiBit with the
// data passed through untouched.
func Decode(data uint64, check uint8) (uint64, Result) {
	syndrome := (Encode(data) ^ check) & 0x7F
	// Even total weight over data plus all eight check bits means the
	// overall parity holds; any single flip breaks it, any double restores it.
	parityErr := (bits.OnesCount64(data)+bits.OnesCount8(check))&1 != 0

	switch {
	case syndrome == 0 && !parityErr:
		return data, Result{Class: ClassNone}
	case syndrome == 0:
		// Only the overall parity bit took the hit; data intact.
		return data, Result{Class: ClassSingleBit}
	case parityErr:
		if p := int(syndrome); p <= codewordBits {
			if k := posData[p]; k != 0 {
				return data ^ (1 << (k - 1)), Result{Class: ClassSingleBit, Pos: k}
			}
		}
		// The flip was a check bit, or the syndrome aliases outside the
		// codeword; either way no data bit was affected.
		return data, Result{Class: ClassSingleBit}
	default:
		return data, Result{Class: ClassMultiBit}
	}
}
