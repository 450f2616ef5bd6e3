// Package token defines Word, a length-carrying byte string for token text.
// The lexer, the per-message hash and the store key their data by plain
// []byte; none of them imports this package.
//
// Word deliberately does not wrap string: tokens may contain non-ASCII or
// even non-UTF-8 bytes pulled straight out of a MIME part, and carrying an
// explicit length avoids relying on a NUL terminator the way the C
// implementation's word_t did.
package token

import "bytes"

// MaxLen is the longest token persisted to the store (spec §3). Lexer output
// longer than this is dropped before it reaches the per-message hash.
const MaxLen = 30

// Word is an immutable, length-carrying byte sequence. The zero value is the
// empty word.
type Word struct {
	b []byte
}

// New copies text into a new Word. The caller's slice may be reused or
// mutated afterward without affecting the Word.
func New(text []byte) Word {
	if len(text) == 0 {
		return Word{}
	}
	cp := make([]byte, len(text))
	copy(cp, text)
	return Word{b: cp}
}

// FromString is a convenience constructor for literal/test tokens.
func FromString(s string) Word {
	return New([]byte(s))
}

// Borrow wraps text without copying. The caller must guarantee text is not
// mutated for the lifetime of the Word; it suits short-lived lookups where
// no copy is needed.
func Borrow(text []byte) Word {
	return Word{b: text}
}

// Bytes returns the word's bytes. Callers must not mutate the result.
func (w Word) Bytes() []byte { return w.b }

// String renders the word's bytes as a string (may contain non-UTF-8 bytes).
func (w Word) String() string { return string(w.b) }

// Len returns the number of bytes in the word.
func (w Word) Len() int { return len(w.b) }

// Equal reports whether two words have identical bytes.
func (w Word) Equal(o Word) bool { return bytes.Equal(w.b, o.b) }

// Compare orders two words by raw byte value, matching the store's required
// lexicographic scan order (spec §4.4 Ordering invariant).
func (w Word) Compare(o Word) int { return bytes.Compare(w.b, o.b) }

// IsEmpty reports whether the word has zero length.
func (w Word) IsEmpty() bool { return len(w.b) == 0 }
