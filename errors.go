package utf8stream

import (
	"errors"
	"fmt"
)

// ErrInvalidSequence is reported by a FailPolicy whose Err is nil.
var ErrInvalidSequence = errors.New("utf8stream: invalid UTF-8 sequence")

// InvalidSequenceError is returned by Append, Write and Finalize when the
// FailPolicy is in effect.
//
// Unwrap returns the error configured on the policy, so errors.Is matches it.
//
type InvalidSequenceError struct {
	// Offset is the byte offset of the sequence within the stream, counted
	// from the last Reset.
	Offset int64

	// Bytes holds a copy of the offending bytes.
	Bytes []byte

	// Err is the error configured on the FailPolicy.
	Err error
}

func (e *InvalidSequenceError) Error() string {
	return fmt.Sprintf("invalid sequence [% x] at byte offset %d: %v", e.Bytes, e.Offset, e.Err)
}

func (e *InvalidSequenceError) Unwrap() error {
	return e.Err
}
