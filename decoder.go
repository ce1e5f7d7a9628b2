package utf8stream

import (
	"encoding/hex"

	"go.uber.org/zap"
)

// StreamDecoder is the interface for incremental byte-to-text decoders.
type StreamDecoder interface {
	// Append adds bytes that follow everything appended so far, and decodes
	// as much as can be decoded.
	Append(p []byte) error

	// Retrieve returns the text decoded since the last call, and forgets it.
	Retrieve() string

	// Finalize ends the stream.  Any bytes still pending are reported to the
	// policy as one invalid sequence.
	Finalize() error

	// Reset returns the decoder to its initial state.
	Reset()

	// Policy returns the invalid-sequence policy.
	Policy() Policy

	// SetPolicy replaces the invalid-sequence policy.
	SetPolicy(p Policy)

	// HasErrors returns true iff an invalid sequence was seen since the
	// last Reset.
	HasErrors() bool
}

// DecoderOptions holds configurable parameters for a Decoder.
type DecoderOptions struct {
	// Policy is applied to every invalid sequence.
	//
	// Default is IgnorePolicy{}.
	//
	Policy Policy

	// AllowRedundantEncoding accepts overlong sequences, such as C0 80 for
	// U+0000.  They are emitted in their shortest form.
	//
	// Default is false.
	//
	AllowRedundantEncoding bool

	// Logger receives a Debug entry for each invalid sequence.
	//
	// Default is zap.NewNop().
	//
	Logger *zap.Logger

	// Metrics, if not nil, is updated as the decoder runs.
	Metrics *Metrics
}

// Stats holds counters for a Decoder, cleared by Reset.
type Stats struct {
	// BytesAppended is the number of bytes given to Append.
	BytesAppended int64

	// TextBytes is the number of bytes of text produced, replacement text
	// included.
	TextBytes int64

	// InvalidSequences is the number of invalid sequences reported to the
	// policy.
	InvalidSequences int64

	// Replacements is the number of times replacement text was emitted.
	Replacements int64
}

// Decoder is an incremental UTF-8 decoder.
//
// Bytes may be appended in chunks of any size; a sequence split across
// chunks is held back until it is complete.  Decoder is not safe for
// concurrent use.
//
// The zero value is ready to use with the default options.
//
type Decoder struct {
	// pending holds the bytes not yet resolved into text.
	pending []byte

	// text holds the text decoded since the last Retrieve.
	text []byte

	// offset is the stream offset of pending[0].
	offset int64

	policy         Policy
	allowRedundant bool
	hasErrors      bool

	log     *zap.Logger
	metrics *Metrics
	stats   Stats
}

var _ StreamDecoder = (*Decoder)(nil)

// NewDecoder constructs a new Decoder.
//
// "NewDecoder(o)" is exactly equivalent to allocating a zero-valued Decoder
// and calling "Init(o)" on it.
//
func NewDecoder(o DecoderOptions) *Decoder {
	d := new(Decoder)
	d.Init(o)
	return d
}

// Init configures this Decoder with the given options and resets it.
func (d *Decoder) Init(o DecoderOptions) {
	d.policy = o.Policy
	d.allowRedundant = o.AllowRedundantEncoding
	d.log = o.Logger
	d.metrics = o.Metrics
	d.clear()
}

// Policy returns the invalid-sequence policy.
func (d *Decoder) Policy() Policy {
	if d.policy == nil {
		return IgnorePolicy{}
	}
	return d.policy
}

// SetPolicy replaces the invalid-sequence policy.  A nil policy means
// IgnorePolicy{}.  The new policy applies from the next invalid sequence.
func (d *Decoder) SetPolicy(p Policy) {
	d.policy = p
}

// AllowRedundantEncoding returns true iff overlong sequences are accepted.
func (d *Decoder) AllowRedundantEncoding() bool {
	return d.allowRedundant
}

// SetAllowRedundantEncoding changes whether overlong sequences are accepted.
// Bytes already decoded are not revisited.
func (d *Decoder) SetAllowRedundantEncoding(allow bool) {
	d.allowRedundant = allow
}

// HasErrors fulfills the StreamDecoder interface.
func (d *Decoder) HasErrors() bool {
	return d.hasErrors
}

// Pending returns the number of bytes appended but not yet resolved.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Stats returns a snapshot of the decoder's counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset fulfills the StreamDecoder interface.
//
// The policy, the redundant encoding setting, the logger and the metrics are
// kept.
//
func (d *Decoder) Reset() {
	d.clear()
	d.metrics.reset()
}

func (d *Decoder) clear() {
	d.pending = d.pending[:0]
	d.text = d.text[:0]
	d.offset = 0
	d.hasErrors = false
	d.stats = Stats{}
}

// Append fulfills the StreamDecoder interface.
//
// Append only fails with the FailPolicy.  It does not roll back: the text
// decoded before the invalid sequence stays available to Retrieve, the
// invalid sequence is consumed, and the bytes after it stay pending.  Call
// Append with no bytes to resume decoding them.
//
func (d *Decoder) Append(p []byte) error {
	d.pending = append(d.pending, p...)
	d.stats.BytesAppended += int64(len(p))
	d.metrics.appended(len(p))
	return d.decode()
}

// Write appends p to the decoder, making Decoder an io.Writer.
//
// n is always len(p), since the bytes are retained even when the policy
// fails.
//
func (d *Decoder) Write(p []byte) (n int, err error) {
	return len(p), d.Append(p)
}

// Retrieve fulfills the StreamDecoder interface.
func (d *Decoder) Retrieve() string {
	if len(d.text) == 0 {
		return ""
	}
	s := string(d.text)
	d.text = d.text[:0]
	return s
}

// Finalize fulfills the StreamDecoder interface.
//
// The pending bytes are discarded even if the policy fails.
//
func (d *Decoder) Finalize() error {
	d.metrics.finalized()
	if len(d.pending) == 0 {
		return nil
	}
	n := len(d.pending)
	err := d.invalid(d.pending, d.offset)
	d.consume(n)
	return err
}

// decode scans pending from the start, moving every verified span into
// text.  It stops at the first sequence that cannot be resolved with the
// bytes buffered so far.
func (d *Decoder) decode() error {
	p := d.pending
	pos, start := 0, 0
	redundant := false

	flush := func() {
		if redundant {
			d.emit(appendShortest(nil, p[start:pos]))
		} else {
			d.emit(p[start:pos])
		}
		redundant = false
	}

	for pos < len(p) {
		b := p[pos]
		next := 0

		if isContinuation(b) {
			var ok bool
			if next, ok = nextLead(p, pos); !ok {
				break
			}
		} else if n := sequenceLength(b); n == invalidLength {
			next = pos + 1
		} else if pos+n > len(p) {
			break
		} else if valid, over := checkSequence(p[pos:pos+n], d.allowRedundant); valid {
			redundant = redundant || over
			pos += n
			continue
		} else {
			var ok bool
			if next, ok = nextLead(p, pos); !ok {
				break
			}
		}

		flush()
		err := d.invalid(p[pos:next], d.offset+int64(pos))
		pos, start = next, next
		if err != nil {
			d.consume(pos)
			return err
		}
	}

	flush()
	d.consume(pos)
	return nil
}

// emit appends decoded text.
func (d *Decoder) emit(s []byte) {
	if len(s) == 0 {
		return
	}
	d.text = append(d.text, s...)
	d.stats.TextBytes += int64(len(s))
	d.metrics.decoded(len(s))
}

// invalid records one invalid sequence and applies the policy to it.
func (d *Decoder) invalid(seq []byte, offset int64) error {
	d.hasErrors = true
	d.stats.InvalidSequences++
	policy := d.Policy()
	d.metrics.invalid(policy.String())
	if d.log != nil {
		if ce := d.log.Check(zap.DebugLevel, "invalid sequence"); ce != nil {
			ce.Write(
				zap.Int64("offset", offset),
				zap.String("bytes", hex.EncodeToString(seq)),
				zap.Stringer("policy", policy),
			)
		}
	}
	return policy.apply(d, seq, offset)
}

// consume drops the first n pending bytes.
func (d *Decoder) consume(n int) {
	if n == 0 {
		return
	}
	d.offset += int64(n)
	d.pending = d.pending[:copy(d.pending, d.pending[n:])]
}
