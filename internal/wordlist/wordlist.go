// Package wordlist implements the multi-list lookup facade (spec §4.5):
// walking an ordered chain of wordlists, applying override precedence and
// IGNORE-list zeroing, and exposing the two distinguished counter records
// every wordlist carries (.MSG_COUNT, .ROBX).
package wordlist

import (
	"errors"
	"fmt"

	"bogofilter-go/internal/errs"
	"bogofilter-go/internal/store"
)

// Type distinguishes a normal scoring wordlist from one whose hits zero a
// token's contribution entirely.
type Type int

const (
	Normal Type = iota
	Ignore
)

// msgCountKey and robxKey are the reserved keys of the two counter records
// (spec §3 MsgCountRecord).
const (
	msgCountKey = ".MSG_COUNT"
	robxKey     = ".ROBX"

	// robxScale is this implementation's single documented convention for
	// .ROBX scaling (spec.md's first Open Question, resolved in SPEC_FULL.md §9):
	// always stored multiplied by 1,000,000.
	robxScale = 1_000_000
)

// List is one wordlist in the chain: a name, its open store handle, and its
// precedence/type.
type List struct {
	Name     string
	DB       *store.DB
	Type     Type
	Override uint8
}

// Counts is the accumulated (good, bad) contribution for one token after
// walking a chain.
type Counts struct {
	Good, Bad           uint32
	MsgsGood, MsgsSpam  uint32
}

// Chain is an ordered list of wordlists consulted for every token lookup.
type Chain struct {
	lists []*List
}

// NewChain builds a Chain from lists in override-precedence order (as
// configured; the chain does not sort them — spec §4.5 walks the list in
// the order given, stopping once a higher override has already produced a
// hit).
func NewChain(lists []*List) *Chain {
	return &Chain{lists: lists}
}

// Lookup walks the chain for key, applying override precedence and
// IGNORE-list zeroing exactly as spec §4.5 describes:
//
//	effective_override starts at 0; for each list in order, if
//	list.Override < effective_override, stop; read the token; an IGNORE hit
//	zeroes the accumulator and stops the walk; otherwise accumulate and raise
//	effective_override to list.Override.
func (c *Chain) Lookup(key []byte) (Counts, error) {
	var acc Counts
	effectiveOverride := uint8(0)

	for _, l := range c.lists {
		if l.Override < effectiveOverride {
			break
		}

		var rec store.TokenRecord
		var msgs Counts
		hit := true
		err := l.DB.WithReadTxn(func(tx *store.Txn) error {
			var gerr error
			rec, gerr = tx.Get(key)
			if errors.Is(gerr, errs.NotFound) {
				hit = false
			} else if gerr != nil {
				return gerr
			}
			mc, merr := readMsgCount(tx)
			if merr != nil {
				return merr
			}
			msgs = mc
			return nil
		})
		if err != nil {
			return Counts{}, fmt.Errorf("wordlist %q lookup: %w", l.Name, err)
		}

		acc.MsgsGood += msgs.MsgsGood
		acc.MsgsSpam += msgs.MsgsSpam

		if !hit {
			continue
		}
		if l.Type == Ignore {
			acc.Good, acc.Bad = 0, 0
			break
		}
		acc.Good += rec.Good
		acc.Bad += rec.Bad
		effectiveOverride = l.Override
	}

	return acc, nil
}

// readMsgCount reads the .MSG_COUNT record within an already-open
// transaction, treating an absent record as zero counts (a fresh wordlist
// has registered nothing yet).
func readMsgCount(tx *store.Txn) (Counts, error) {
	rec, err := tx.Get([]byte(msgCountKey))
	if errors.Is(err, errs.NotFound) {
		return Counts{}, nil
	}
	if err != nil {
		return Counts{}, err
	}
	return Counts{MsgsGood: rec.Good, MsgsSpam: rec.Bad}, nil
}

// IncrementMsgCount applies a registration's message-count delta to
// .MSG_COUNT within tx (spec §4.7: "Update .MSG_COUNT by the message
// increment").
func IncrementMsgCount(tx *store.Txn, deltaGood, deltaSpam int64) error {
	cur, err := readMsgCountRecord(tx)
	if err != nil {
		return err
	}
	return tx.Put([]byte(msgCountKey), cur.Clamped(deltaGood, deltaSpam))
}

func readMsgCountRecord(tx *store.Txn) (store.TokenRecord, error) {
	rec, err := tx.Get([]byte(msgCountKey))
	if errors.Is(err, errs.NotFound) {
		return store.TokenRecord{}, nil
	}
	return rec, err
}

// ReadROBX reads the first wordlist's stored .ROBX value, scaled back down
// from the 1,000,000 convention this implementation always writes. Absent
// or out-of-[0,1] is a fatal configuration error (spec §4.5).
func ReadROBX(first *store.DB) (float64, error) {
	var scaled uint32
	var found bool
	err := first.WithReadTxn(func(tx *store.Txn) error {
		rec, gerr := tx.Get([]byte(robxKey))
		if errors.Is(gerr, errs.NotFound) {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		found = true
		scaled = rec.Good
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read .ROBX: %w", err)
	}
	if !found {
		return 0, fmt.Errorf(".ROBX not present: %w", errs.ConfigError)
	}

	x := float64(scaled) / robxScale
	if x < 0 || x > 1 {
		return 0, fmt.Errorf(".ROBX %v out of [0,1]: %w", x, errs.ConfigError)
	}
	return x, nil
}

// WriteROBX stores x (in [0,1]) scaled by 1,000,000 into first's .ROBX slot.
// The .ROBX pseudo-token has no real good/bad counts of its own; by
// convention its scaled value always rides in the Good field, with Bad left
// zero, regardless of which statistic a given slot name evokes.
func WriteROBX(tx *store.Txn, x float64) error {
	return tx.Put([]byte(robxKey), store.TokenRecord{Good: uint32(x * robxScale)})
}

// Scalefactor computes n_bad_msgs / n_good_msgs across the chain (or 1 if
// there are no good messages yet), the Robinson/Fisher per-token formula's
// scalefactor term (spec §4.6).
func (c *Counts) Scalefactor() float64 {
	if c.MsgsGood == 0 {
		return 1
	}
	return float64(c.MsgsSpam) / float64(c.MsgsGood)
}
