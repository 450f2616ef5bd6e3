// Package postproc drains a lexer's token stream into a per-message word
// hash (spec §4.3): only TOKEN and IPADDR classes become entries; EMPTY,
// BOUNDARY, and the restore-file line classes are structural markers the
// lexer already consumed for MIME/state bookkeeping and carry no payload of
// their own here.
package postproc

import (
	"io"

	"bogofilter-go/internal/lexer"
	"bogofilter-go/internal/wordhash"
)

// WordProp is the per-token payload accumulated in a message's word hash
// (spec §3 PerMessageHash).
type WordProp struct {
	Good uint32
	Bad  uint32
	Prob float64
	Freq uint32
}

// Hash is a per-message word hash keyed by token bytes.
type Hash = wordhash.Hash[WordProp]

// Run tokenizes r with the given lexer configuration and returns the
// resulting per-message hash. Every TOKEN/IPADDR occurrence increments the
// existing entry's Freq rather than creating a duplicate (spec §4.3: "inserts
// into the per-message hash with initial counts {good:0, bad:0, freq:1};
// duplicates increment freq").
func Run(r io.Reader, cfg lexer.Config) *Hash {
	lx := lexer.New(r, cfg)
	h := wordhash.New[WordProp]()
	Drain(lx, h)
	return h
}

// Drain pulls every token from lx and folds TOKEN/IPADDR occurrences into h.
// Run builds a fresh lexer and hash and calls it; it is exported so a caller
// holding its own Lexer and Hash can fold tokens the same way.
func Drain(lx *lexer.Lexer, h *Hash) {
	for {
		class, text := lx.Next()
		switch class {
		case lexer.ClassNone:
			return
		case lexer.ClassToken, lexer.ClassIPAddr:
			insert(h, text)
		default:
			// EMPTY, BOUNDARY, MSG_COUNT_LINE, BOGO_LEX_LINE: structural,
			// not counted as words.
		}
	}
}

// insert increments key's Freq, creating the entry (at its zero value) on
// first occurrence. The zero value for Good/Bad/Prob is exactly the spec's
// initial {good:0, bad:0} for a fresh token; Freq starts at 0 and this
// increment brings it to 1 on the first hit and upward on every repeat.
func insert(h *Hash, key []byte) {
	p := h.Insert(key, nil)
	p.Freq++
}

// Repeats caps a token's contribution to a registration transaction at
// max_repeats occurrences (spec §4.3 word-frequency cap).
func Repeats(freq, maxRepeats uint32) uint32 {
	if freq > maxRepeats {
		return maxRepeats
	}
	return freq
}
