package utf8stream

import (
	"fmt"
)

// tabWidth is the distance between tab stops.
const tabWidth = 8

// Position is a location within decoded text.
//
// Offset counts bytes of decoded text, not bytes of input: replacement text
// occupies its own length and ignored sequences occupy none.
//
type Position struct {
	Offset     uint64
	Line       uint64
	Column     uint64
	SkipNextLF bool
}

// MakePosition returns the Position for the start of a text.
func MakePosition() Position {
	return Position{Line: 1, Column: 1}
}

// Reset moves this position back to the start of the text.
func (pos *Position) Reset() {
	*pos = MakePosition()
}

// Advance moves the position past ch, which occupies size bytes of text.
//
// CR, LF and CR LF each end a line.  A tab moves the column to the next tab
// stop.
//
func (pos *Position) Advance(ch rune, size int) {
	switch {
	case size < 0:
		panic("negative size")
	case size == 0:
		return
	}

	pos.Offset += uint64(size)
	skip := pos.SkipNextLF
	pos.SkipNextLF = false

	switch ch {
	case '\r':
		pos.newline()
		pos.SkipNextLF = true
	case '\n':
		if !skip {
			pos.newline()
		}
	case '\t':
		pos.Column += tabWidth - (pos.Column-1)%tabWidth
	default:
		pos.Column++
	}
}

func (pos *Position) newline() {
	pos.Line++
	pos.Column = 1
}

func (pos Position) String() string {
	return fmt.Sprintf("line %d column %d (text offset %d)", pos.Line, pos.Column, pos.Offset)
}
