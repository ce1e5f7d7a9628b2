package utf8stream

import (
	"io"
	"unicode/utf8"
)

// DefaultBlockSize is the read size used when Options.BlockSize is zero.
const DefaultBlockSize = 4096

// Options holds configurable parameters for a RuneStream.
type Options struct {
	// BlockSize is the number of bytes to read at a time.
	//
	// Default is DefaultBlockSize.
	//
	BlockSize int

	// Decoder configures the stream's Decoder.  Use ReplacePolicy to see
	// invalid input as replacement runes, or FailPolicy to stop the stream
	// at the first invalid sequence.
	//
	// Default is the zero DecoderOptions, which ignores invalid input.
	//
	Decoder DecoderOptions
}

// RuneStream lexes runes out of a byte stream.
//
// Runes are read ahead into a buffer so that the caller can back up to a
// save point; Commit releases everything before the current position.
//
type RuneStream struct {
	r  io.Reader
	d  Decoder
	bs int

	// block is reused for every read.
	block []byte

	// pos is the position of the next rune to be queued.
	pos Position

	// queue holds the runes read since the last Commit.
	queue []queuedRune

	// curr is the queued rune the caller is looking at.
	curr *queuedRune

	// gen is incremented by Commit and Init, invalidating save points.
	gen uint

	// next indexes the queued rune that Advance will return.
	next uint

	// err ends the stream once set.
	err error
}

type queuedRune struct {
	pos   Position
	value rune
	size  int
	err   error
}

// SavePoint marks a position in a RuneStream.
type SavePoint struct {
	gen  uint
	next uint
}

// New constructs a new RuneStream.
//
// "New(r, o)" is exactly equivalent to allocating a zero-valued RuneStream and
// calling "Init(r, o)" on it.
//
func New(r io.Reader, o Options) *RuneStream {
	stream := new(RuneStream)
	stream.Init(r, o)
	return stream
}

// Init (re)starts this RuneStream on r.
func (stream *RuneStream) Init(r io.Reader, o Options) {
	bs := o.BlockSize
	if bs < 0 {
		panic("BlockSize < 0")
	}
	if bs == 0 {
		bs = DefaultBlockSize
	}
	if len(stream.block) != bs {
		stream.block = make([]byte, bs)
	}

	stream.r = r
	stream.d.Init(o.Decoder)
	stream.bs = bs
	stream.pos.Reset()
	stream.queue = nil
	stream.curr = nil
	stream.gen++
	stream.next = 0
	stream.err = nil
}

// BlockSize returns the read size of the stream.
func (stream *RuneStream) BlockSize() int {
	return stream.bs
}

// HasErrors returns true iff invalid input has been seen so far.
func (stream *RuneStream) HasErrors() bool {
	return stream.d.HasErrors()
}

// Save returns a save point for the current position.
func (stream *RuneStream) Save() SavePoint {
	return SavePoint{stream.gen, stream.next}
}

// Restore backs the stream up to sp.  It panics if Commit has been called
// since sp was taken.
func (stream *RuneStream) Restore(sp SavePoint) {
	if sp.gen != stream.gen {
		panic("save point is stale")
	}
	stream.next = sp.next
	stream.curr = nil
}

// Rewind backs the stream up to the last Commit.
func (stream *RuneStream) Rewind() {
	stream.next = 0
	stream.curr = nil
}

// Commit discards the runes before the current position.  All save points
// become stale.
func (stream *RuneStream) Commit() {
	stream.queue = stream.queue[stream.next:]
	stream.gen++
	stream.next = 0
	stream.curr = nil
}

// fill queues the runes of the next block of input.  Once the reader fails
// or the decoder rejects the input, the error is queued last and fill is
// never called again.
func (stream *RuneStream) fill() {
	if len(stream.queue) >= 0x40000000 {
		panic("too many calls to Advance() without Commit()")
	}

	for {
		n, err := stream.r.Read(stream.block)
		derr := stream.d.Append(stream.block[:n])
		if derr == nil && err != nil {
			derr = stream.d.Finalize()
		}
		queued := stream.queueText(stream.d.Retrieve())

		switch {
		case derr != nil:
			stream.fail(derr)
		case err != nil:
			stream.fail(err)
		case queued == 0:
			continue
		}
		return
	}
}

func (stream *RuneStream) queueText(text string) int {
	count := 0
	for len(text) > 0 {
		ch, size := utf8.DecodeRuneInString(text)
		stream.queue = append(stream.queue, queuedRune{
			pos:   stream.pos,
			value: ch,
			size:  size,
		})
		stream.pos.Advance(ch, size)
		text = text[size:]
		count++
	}
	return count
}

func (stream *RuneStream) fail(err error) {
	stream.err = err
	stream.queue = append(stream.queue, queuedRune{pos: stream.pos, err: err})
}

// Advance moves to the next rune.  It returns false once the stream has
// ended; Err then reports why (io.EOF at the end of input).
func (stream *RuneStream) Advance() bool {
	if stream.curr != nil && stream.curr.err != nil {
		return false
	}
	if stream.next >= uint(len(stream.queue)) {
		if stream.err != nil {
			stream.fail(stream.err)
		} else {
			stream.fill()
		}
	}
	stream.curr = &stream.queue[stream.next]
	stream.next++
	return stream.curr.err == nil
}

// Rune returns the current rune.
func (stream *RuneStream) Rune() rune {
	return stream.curr.value
}

// Size returns the number of bytes of text the current rune occupies.
func (stream *RuneStream) Size() int {
	return stream.curr.size
}

// Position returns the position of the current rune.
func (stream *RuneStream) Position() Position {
	return stream.curr.pos
}

// Err returns the error that ended the stream, if any.
func (stream *RuneStream) Err() error {
	return stream.curr.err
}

// Take consumes the next rune if pred accepts it.
func (stream *RuneStream) Take(pred func(rune) bool) (rune, bool) {
	sp := stream.Save()
	if stream.Advance() && pred(stream.curr.value) {
		return stream.curr.value, true
	}
	stream.Restore(sp)
	return 0, false
}

// TakeWhile consumes runes while pred accepts them, appending them to out.
//
// A negative max means no limit.
//
func (stream *RuneStream) TakeWhile(max int, out []rune, pred func(rune) bool) []rune {
	sp := stream.Save()
	for count := 0; max < 0 || count < max; count++ {
		if !stream.Advance() || !pred(stream.curr.value) {
			break
		}
		out = append(out, stream.curr.value)
		sp = stream.Save()
	}
	stream.Restore(sp)
	return out
}

// TakeUntil consumes runes until pred accepts one, appending them to out.
//
// A negative max means no limit.
//
func (stream *RuneStream) TakeUntil(max int, out []rune, pred func(rune) bool) []rune {
	return stream.TakeWhile(max, out, func(ch rune) bool { return !pred(ch) })
}
