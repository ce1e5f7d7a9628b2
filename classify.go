package utf8stream

import (
	"unicode/utf8"
)

const (
	maxCodePoint  = 0x10FFFF
	surrogateMin  = 0xD800
	surrogateMax  = 0xDFFF
	nonCharFFFE   = 0xFFFE
	nonCharFFFF   = 0xFFFF
	continuation  = 0x80
	payloadMask   = 0x3F
	maxSequence   = utf8.UTFMax
	invalidLength = 0
)

// minCodePoint[n] is the smallest code point that needs an n-byte sequence.
var minCodePoint = [maxSequence + 1]rune{0, 0, 0x80, 0x800, 0x10000}

// leadMask[n] keeps the payload bits of an n-byte lead byte.
var leadMask = [maxSequence + 1]byte{0, 0x7F, 0x1F, 0x0F, 0x07}

// isContinuation reports whether b has the bit pattern 10xxxxxx.
func isContinuation(b byte) bool {
	return b&0xC0 == continuation
}

// sequenceLength returns the total sequence length implied by the lead byte
// b, or 0 if b cannot start a sequence (continuation bytes and the obsolete
// 5- and 6-byte forms).
func sequenceLength(b byte) int {
	switch {
	case b&0x80 == 0x00:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return invalidLength
	}
}

// decodeSequence assembles the code point of the complete sequence p, whose
// length must match its lead byte.  ok is false if a trailing byte is not a
// continuation byte.
func decodeSequence(p []byte) (cp rune, ok bool) {
	n := len(p)
	cp = rune(p[0] & leadMask[n])
	for _, b := range p[1:] {
		if !isContinuation(b) {
			return 0, false
		}
		cp = cp<<6 | rune(b&payloadMask)
	}
	return cp, true
}

// checkSequence validates the complete sequence p.
//
// redundant is true when p is an overlong form that was accepted only because
// allowRedundant is set; such sequences must be re-encoded before they are
// emitted as text.
//
func checkSequence(p []byte, allowRedundant bool) (valid bool, redundant bool) {
	n := len(p)
	if n == 1 {
		return true, false
	}
	cp, ok := decodeSequence(p)
	if !ok {
		return false, false
	}
	if cp > maxCodePoint || cp == nonCharFFFE || cp == nonCharFFFF {
		return false, false
	}
	if cp >= surrogateMin && cp <= surrogateMax {
		return false, false
	}
	if cp < minCodePoint[n] {
		return allowRedundant, allowRedundant
	}
	return true, false
}

// nextLead returns the index of the first byte after i in p that is not a
// continuation byte.  ok is false if no such byte is buffered yet.
func nextLead(p []byte, i int) (next int, ok bool) {
	for j := i + 1; j < len(p); j++ {
		if !isContinuation(p[j]) {
			return j, true
		}
	}
	return 0, false
}

// appendShortest appends the already validated span p to dst, re-encoding
// every sequence in its shortest form.
func appendShortest(dst, p []byte) []byte {
	for len(p) > 0 {
		n := sequenceLength(p[0])
		cp, _ := decodeSequence(p[:n])
		dst = utf8.AppendRune(dst, cp)
		p = p[n:]
	}
	return dst
}
