package utf8stream

// ReplacementCharacter is the customary replacement text, U+FFFD.
const ReplacementCharacter = "\uFFFD"

// Policy selects what a Decoder does when it meets an invalid sequence.
//
// The set of policies is closed: IgnorePolicy, FailPolicy and ReplacePolicy.
// Whatever the policy, the decoder's HasErrors flag is set first.
//
type Policy interface {
	// String returns the policy name: "ignore", "fail" or "replace".
	String() string

	// apply performs the policy for one invalid sequence.  A non-nil
	// return value aborts the current Append or Finalize call.
	apply(d *Decoder, seq []byte, offset int64) error
}

// IgnorePolicy drops invalid sequences silently.
type IgnorePolicy struct{}

// FailPolicy aborts the current Append or Finalize call with an
// *InvalidSequenceError wrapping Err.
//
// If Err is nil, ErrInvalidSequence is used.
//
type FailPolicy struct {
	Err error
}

// ReplacePolicy emits Text in place of each invalid sequence.
type ReplacePolicy struct {
	Text string
}

var (
	_ Policy = IgnorePolicy{}
	_ Policy = FailPolicy{}
	_ Policy = ReplacePolicy{}
)

// Ignore returns an IgnorePolicy.
func Ignore() Policy { return IgnorePolicy{} }

// Fail returns a FailPolicy that reports err.
func Fail(err error) Policy { return FailPolicy{Err: err} }

// Replace returns a ReplacePolicy that emits text.
func Replace(text string) Policy { return ReplacePolicy{Text: text} }

// String fulfills the Policy interface.
func (IgnorePolicy) String() string { return "ignore" }

// String fulfills the Policy interface.
func (FailPolicy) String() string { return "fail" }

// String fulfills the Policy interface.
func (ReplacePolicy) String() string { return "replace" }

func (IgnorePolicy) apply(*Decoder, []byte, int64) error {
	return nil
}

func (p FailPolicy) apply(_ *Decoder, seq []byte, offset int64) error {
	err := p.Err
	if err == nil {
		err = ErrInvalidSequence
	}
	return &InvalidSequenceError{
		Offset: offset,
		Bytes:  append([]byte(nil), seq...),
		Err:    err,
	}
}

func (p ReplacePolicy) apply(d *Decoder, _ []byte, _ int64) error {
	d.emit([]byte(p.Text))
	d.stats.Replacements++
	return nil
}
