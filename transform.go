package utf8stream

import (
	"golang.org/x/text/transform"
)

// Transformer adapts a Decoder to the golang.org/x/text/transform package.
//
// Source bytes are always consumed in full.  Text that does not fit in dst is
// held back and written first on the next call, which is reported with
// transform.ErrShortDst.  Transform errors only under the FailPolicy.
//
type Transformer struct {
	d   Decoder
	out []byte
}

var _ transform.Transformer = (*Transformer)(nil)

// NewTransformer returns a Transformer decoding with the given options.
func NewTransformer(o DecoderOptions) *Transformer {
	t := new(Transformer)
	t.d.Init(o)
	return t
}

// Decoder returns the underlying Decoder, e.g. to inspect HasErrors or to
// change the policy between calls.
func (t *Transformer) Decoder() *Decoder {
	return &t.d
}

// Transform fulfills the transform.Transformer interface.
func (t *Transformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	nDst = t.drain(dst)
	if len(t.out) > 0 {
		return nDst, 0, transform.ErrShortDst
	}

	err = t.d.Append(src)
	nSrc = len(src)
	if err == nil && atEOF {
		err = t.d.Finalize()
	}
	t.out = append(t.out, t.d.Retrieve()...)

	nDst += t.drain(dst[nDst:])
	if err == nil && len(t.out) > 0 {
		err = transform.ErrShortDst
	}
	return nDst, nSrc, err
}

// Reset fulfills the transform.Transformer interface.
func (t *Transformer) Reset() {
	t.d.Reset()
	t.out = t.out[:0]
}

// drain moves as much held-back text into dst as fits.
func (t *Transformer) drain(dst []byte) int {
	n := copy(dst, t.out)
	t.out = t.out[:copy(t.out, t.out[n:])]
	return n
}
