package utf8stream

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const marker = "<?>"

// decodeChunks feeds chunks to d one at a time and returns everything
// retrieved, including the text produced by Finalize.
func decodeChunks(t *testing.T, d *Decoder, chunks ...[]byte) string {
	t.Helper()
	var out bytes.Buffer
	for i, chunk := range chunks {
		if err := d.Append(chunk); err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", i, err)
		}
		out.WriteString(d.Retrieve())
	}
	if err := d.Finalize(); err != nil {
		t.Fatalf("finalize: unexpected error: %v", err)
	}
	out.WriteString(d.Retrieve())
	if d.Pending() != 0 {
		t.Fatalf("%d bytes pending after Finalize", d.Pending())
	}
	return out.String()
}

func TestDecoder_scenario(t *testing.T) {
	d := NewDecoder(DecoderOptions{})

	chunks := [][]byte{
		{0xC3, 0xA9, 0xE3, 0x81},
		{0x82, 0xF0, 0x9F, 0x92},
		{0x94},
	}
	expected := []string{"é", "あ", "💔"}

	var all string
	for i, chunk := range chunks {
		if err := d.Append(chunk); err != nil {
			t.Fatalf("[%02d] unexpected error: %v", i, err)
		}
		actual := d.Retrieve()
		if actual != expected[i] {
			t.Errorf("[%02d] expected %q, got %q", i, expected[i], actual)
		}
		all += actual
	}
	if err := d.Finalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all += d.Retrieve()

	if all != "éあ💔" {
		t.Errorf("expected %q, got %q", "éあ💔", all)
	}
	if d.HasErrors() {
		t.Errorf("unexpected errors")
	}
	if n := d.Stats().InvalidSequences; n != 0 {
		t.Errorf("expected 0 invalid sequences, got %d", n)
	}
}

func TestDecoder_sequences(t *testing.T) {
	type testCase struct {
		name      string
		input     []byte
		redundant bool
		expected  string
		invalid   int64
	}

	m := marker
	testCases := []testCase{
		{"ascii", []byte("abc"), false, "abc", 0},
		{"two byte", []byte("ñ"), false, "ñ", 0},
		{"max code point", []byte{0xF4, 0x8F, 0xBF, 0xBF}, false, "\U0010FFFF", 0},
		{"U+FFFD", []byte{0xEF, 0xBF, 0xBD}, false, "\uFFFD", 0},
		{"bad lead then ascii", []byte{0xFF, 0x41}, false, m + "A", 1},
		{"five byte lead", []byte{0xF8, 0x88, 0x80, 0x80, 0x80, 0x41}, false, m + m + "A", 2},
		{"stray continuations", []byte{0x41, 0x80, 0xBF, 0x80, 0x42}, false, "A" + m + "B", 1},
		{"lead without continuation", []byte{0xE3, 0x41, 0x42}, false, m + "AB", 1},
		{"short sequence at end", []byte{0xE3, 0x81}, false, m, 1},
		{"short sequence then ascii", []byte{0xE3, 0x81, 0x41}, false, m + "A", 1},
		{"truncated ascii swallowed", []byte{0x41, 0xE3, 0x41}, false, "A" + m, 1},
		{"overlong NUL", []byte{0xC0, 0x80}, false, m, 1},
		{"overlong NUL allowed", []byte{0xC0, 0x80}, true, "\x00", 0},
		{"overlong three byte allowed", []byte{0xE0, 0x81, 0x81, 0x41}, true, "AA", 0},
		{"overlong four byte", []byte{0xF0, 0x80, 0x80, 0x80, 0x41}, false, m + "A", 1},
		{"overlong four byte allowed", []byte{0xF0, 0x80, 0x81, 0x81}, true, "A", 0},
		{"surrogate", []byte{0xED, 0xA0, 0x80, 0x41}, false, m + "A", 1},
		{"surrogate allowed redundant", []byte{0xED, 0xA0, 0x80, 0x41}, true, m + "A", 1},
		{"overlong surrogate", []byte{0xF0, 0x8D, 0xBF, 0xBF}, true, m, 1},
		{"U+FFFE", []byte{0xEF, 0xBF, 0xBE}, false, m, 1},
		{"U+FFFF", []byte{0xEF, 0xBF, 0xBF}, true, m, 1},
		{"beyond max code point", []byte{0xF4, 0x90, 0x80, 0x80, 0x41}, false, m + "A", 1},
		{"F7 lead", []byte{0xF7, 0xBF, 0xBF, 0xBF}, false, m, 1},
		{"valid between invalid", []byte{0xFE, 0xC3, 0xA9, 0xFE}, false, m + "é" + m, 2},
	}

	for i, tc := range testCases {
		d := NewDecoder(DecoderOptions{
			Policy:                 Replace(marker),
			AllowRedundantEncoding: tc.redundant,
		})
		actual := decodeChunks(t, d, tc.input)
		if actual != tc.expected {
			t.Errorf("[%02d] %s: expected %q, got %q", i, tc.name, tc.expected, actual)
		}
		if !utf8.ValidString(actual) {
			t.Errorf("[%02d] %s: output is not valid UTF-8: %q", i, tc.name, actual)
		}
		if n := d.Stats().InvalidSequences; n != tc.invalid {
			t.Errorf("[%02d] %s: expected %d invalid sequences, got %d", i, tc.name, tc.invalid, n)
		}
		if d.HasErrors() != (tc.invalid > 0) {
			t.Errorf("[%02d] %s: HasErrors = %v", i, tc.name, d.HasErrors())
		}
	}
}

func TestDecoder_chunkInvariance(t *testing.T) {
	inputs := [][]byte{
		[]byte("héllo wörld, 日本語 💔\r\n"),
		{0x41, 0xFF, 0x80, 0x80, 0xC3, 0xA9, 0xE3, 0x81, 0x41, 0xF0, 0x9F, 0x92, 0x94},
		{0xC0, 0x80, 0xED, 0xA0, 0x80, 0xEF, 0xBF, 0xBE, 0xF4, 0x90, 0x80, 0x80, 0x42},
		{0x80, 0x80, 0xE3, 0x81, 0x82, 0xE3, 0x81},
	}

	for i, input := range inputs {
		for _, redundant := range []bool{false, true} {
			opts := DecoderOptions{Policy: Replace(marker), AllowRedundantEncoding: redundant}

			whole := NewDecoder(opts)
			expected := decodeChunks(t, whole, input)
			expectedInvalid := whole.Stats().InvalidSequences

			for x := 0; x <= len(input); x++ {
				for y := x; y <= len(input); y++ {
					d := NewDecoder(opts)
					actual := decodeChunks(t, d, input[:x], input[x:y], input[y:])
					if actual != expected {
						t.Errorf("[%02d] split %d/%d: expected %q, got %q", i, x, y, expected, actual)
					}
					if n := d.Stats().InvalidSequences; n != expectedInvalid {
						t.Errorf("[%02d] split %d/%d: expected %d invalid sequences, got %d", i, x, y, expectedInvalid, n)
					}
				}
			}
		}
	}
}

func TestDecoder_roundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ranges := [][2]rune{
		{0x00, 0x7F},
		{0x80, 0x7FF},
		{0x800, 0xD7FF},
		{0xE000, 0xFFFD},
		{0x10000, 0x10FFFF},
	}

	var text []rune
	for range 5000 {
		r := ranges[rng.IntN(len(ranges))]
		text = append(text, r[0]+rng.Int32N(r[1]-r[0]+1))
	}
	expected := string(text)
	input := []byte(expected)

	var chunks [][]byte
	for rest := input; len(rest) > 0; {
		n := min(1+rng.IntN(7), len(rest))
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}

	d := NewDecoder(DecoderOptions{Policy: Fail(nil)})
	actual := decodeChunks(t, d, chunks...)
	if actual != expected {
		t.Errorf("round trip mismatch: %d runes in, %d runes out", len(text), utf8.RuneCountInString(actual))
	}
	if d.HasErrors() {
		t.Errorf("unexpected errors")
	}
}

func TestDecoder_truncatedAtFinalize(t *testing.T) {
	boom := errors.New("boom")
	d := NewDecoder(DecoderOptions{Policy: Fail(boom)})

	if err := d.Append([]byte{0xE3, 0x81}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Pending() != 2 {
		t.Errorf("expected 2 pending bytes, got %d", d.Pending())
	}
	if d.HasErrors() {
		t.Errorf("error reported before Finalize")
	}

	err := d.Finalize()
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	var ise *InvalidSequenceError
	if !errors.As(err, &ise) {
		t.Fatalf("expected *InvalidSequenceError, got %T", err)
	}
	if ise.Offset != 0 || !bytes.Equal(ise.Bytes, []byte{0xE3, 0x81}) {
		t.Errorf("expected offset 0 bytes [e3 81], got %d [% x]", ise.Offset, ise.Bytes)
	}
	if d.Pending() != 0 {
		t.Errorf("expected no pending bytes, got %d", d.Pending())
	}
	if !d.HasErrors() {
		t.Errorf("expected HasErrors")
	}

	if err := d.Finalize(); err != nil {
		t.Errorf("second Finalize: unexpected error: %v", err)
	}
	if n := d.Stats().InvalidSequences; n != 1 {
		t.Errorf("expected 1 invalid sequence, got %d", n)
	}
}

func TestDecoder_failDoesNotRollBack(t *testing.T) {
	boom := errors.New("boom")
	d := NewDecoder(DecoderOptions{Policy: Fail(boom)})

	input := []byte{'a', 'b', 0xFF, 'c', 0x80, 'd', 0xE3, 0x81}
	err := d.Append(input)

	var ise *InvalidSequenceError
	if !errors.As(err, &ise) || !errors.Is(err, boom) {
		t.Fatalf("expected *InvalidSequenceError wrapping %v, got %v", boom, err)
	}
	if ise.Offset != 2 || !bytes.Equal(ise.Bytes, []byte{0xFF}) {
		t.Errorf("expected offset 2 bytes [ff], got %d [% x]", ise.Offset, ise.Bytes)
	}
	if s := d.Retrieve(); s != "ab" {
		t.Errorf("expected %q, got %q", "ab", s)
	}
	if d.Pending() != 5 {
		t.Errorf("expected 5 pending bytes, got %d", d.Pending())
	}

	err = d.Append(nil)
	if !errors.As(err, &ise) {
		t.Fatalf("expected *InvalidSequenceError, got %v", err)
	}
	if ise.Offset != 4 || !bytes.Equal(ise.Bytes, []byte{0x80}) {
		t.Errorf("expected offset 4 bytes [80], got %d [% x]", ise.Offset, ise.Bytes)
	}
	if s := d.Retrieve(); s != "c" {
		t.Errorf("expected %q, got %q", "c", s)
	}

	if err := d.Append(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := d.Retrieve(); s != "d" {
		t.Errorf("expected %q, got %q", "d", s)
	}
	if d.Pending() != 2 {
		t.Errorf("expected 2 pending bytes, got %d", d.Pending())
	}

	d.SetPolicy(Replace(marker))
	if err := d.Append([]byte{0x82}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := d.Retrieve(); s != "あ" {
		t.Errorf("expected %q, got %q", "あ", s)
	}
}

func TestDecoder_failWithoutError(t *testing.T) {
	var d Decoder
	d.SetPolicy(FailPolicy{})

	err := d.Append([]byte{0xFE, 'x'})
	if !errors.Is(err, ErrInvalidSequence) {
		t.Errorf("expected %v, got %v", ErrInvalidSequence, err)
	}

	n, err := d.Write([]byte("y"))
	if n != 1 || err != nil {
		t.Errorf("expected (1, nil), got (%d, %v)", n, err)
	}
	if s := d.Retrieve(); s != "xy" {
		t.Errorf("expected %q, got %q", "xy", s)
	}
}

func TestDecoder_hasErrorsIsSticky(t *testing.T) {
	var d Decoder

	if d.HasErrors() {
		t.Fatalf("fresh decoder has errors")
	}
	if d.Policy() != Ignore() {
		t.Errorf("expected ignore policy by default, got %v", d.Policy())
	}

	d.Append([]byte{0xFF})
	for i := 0; i < 3; i++ {
		d.Append([]byte("valid"))
		if !d.HasErrors() {
			t.Errorf("[%02d] HasErrors cleared by valid input", i)
		}
	}
	if err := d.Finalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := d.Retrieve(); s != "validvalidvalid" {
		t.Errorf("expected %q, got %q", "validvalidvalid", s)
	}
	if !d.HasErrors() {
		t.Errorf("HasErrors cleared by Finalize")
	}

	d.Reset()
	if d.HasErrors() {
		t.Errorf("HasErrors not cleared by Reset")
	}
}

func TestDecoder_reset(t *testing.T) {
	d := NewDecoder(DecoderOptions{Policy: Replace(marker), AllowRedundantEncoding: true})
	d.Append([]byte{'a', 0xFF, 'b', 0xE3, 0x81})
	d.Reset()

	if d.Pending() != 0 {
		t.Errorf("expected no pending bytes, got %d", d.Pending())
	}
	if s := d.Retrieve(); s != "" {
		t.Errorf("expected empty text, got %q", s)
	}
	if d.Stats() != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", d.Stats())
	}
	if d.Policy() != Replace(marker) || !d.AllowRedundantEncoding() {
		t.Errorf("settings lost by Reset")
	}

	// The carried E3 81 must not be completed by the next stream.
	if s := decodeChunks(t, d, []byte{0x82, 'c'}); s != marker+"c" {
		t.Errorf("expected %q, got %q", marker+"c", s)
	}
}

func TestDecoder_retrieveDrains(t *testing.T) {
	var d Decoder
	d.Append([]byte("abc"))
	if s := d.Retrieve(); s != "abc" {
		t.Errorf("expected %q, got %q", "abc", s)
	}
	if s := d.Retrieve(); s != "" {
		t.Errorf("expected empty text, got %q", s)
	}
}

func TestDecoder_appendCopiesInput(t *testing.T) {
	var d Decoder
	input := []byte{0xE3, 0x81}
	d.Append(input)
	input[0], input[1] = 'x', 'y'
	d.Append([]byte{0x82})
	if s := d.Retrieve(); s != "あ" {
		t.Errorf("expected %q, got %q", "あ", s)
	}
}

func TestDecoder_stats(t *testing.T) {
	d := NewDecoder(DecoderOptions{Policy: Replace("??")})
	decodeChunks(t, d, []byte{'a', 0xFF, 0xC3}, []byte{0xA9, 0x80})

	expected := Stats{
		BytesAppended:    5,
		TextBytes:        1 + 2 + 2 + 2,
		InvalidSequences: 2,
		Replacements:     2,
	}
	if d.Stats() != expected {
		t.Errorf("expected %+v, got %+v", expected, d.Stats())
	}
}

func TestDecoder_logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := NewDecoder(DecoderOptions{Logger: zap.New(core)})

	decodeChunks(t, d, []byte{'a', 'b', 0xED, 0xA0, 0x80, 'c'})

	entries := logs.FilterMessage("invalid sequence").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["offset"] != int64(2) {
		t.Errorf("expected offset 2, got %v", fields["offset"])
	}
	if fields["bytes"] != "eda080" {
		t.Errorf("expected bytes eda080, got %v", fields["bytes"])
	}
	if fields["policy"] != "ignore" {
		t.Errorf("expected policy ignore, got %v", fields["policy"])
	}
}

func TestInvalidSequenceError(t *testing.T) {
	boom := errors.New("boom")
	err := &InvalidSequenceError{Offset: 7, Bytes: []byte{0xC0, 0x80}, Err: boom}

	expected := "invalid sequence [c0 80] at byte offset 7: boom"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, boom) {
		t.Errorf("errors.Is failed")
	}
}
