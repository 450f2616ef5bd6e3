// Package classifier implements the per-message driver (spec §4.7): one
// exported entry point that reads a message, runs the lexer and
// post-processor, optionally registers it against the store, optionally
// classifies it, and optionally re-emits it with a verdict header. It is
// built in the style of the teacher's proxy.Server.ServeHTTP/handleHTTP
// dispatch — one entry point that inspects mode flags and dispatches, with
// the same "log the action, then act" texture as proxy.go's [HTTP]/[ANON]
// log lines.
package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"bogofilter-go/internal/bogoheader"
	"bogofilter-go/internal/errs"
	"bogofilter-go/internal/lexer"
	"bogofilter-go/internal/logger"
	"bogofilter-go/internal/postproc"
	"bogofilter-go/internal/reporter"
	"bogofilter-go/internal/scorer"
	"bogofilter-go/internal/store"
	"bogofilter-go/internal/wordlist"
)

func newByteReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// Direction is a registration transaction's sign (spec §4.7 registration
// transaction: REG_SPAM | REG_GOOD | UNREG_SPAM | UNREG_GOOD).
type Direction int

const (
	RegSpam Direction = iota
	RegGood
	UnregSpam
	UnregGood
)

// deltas returns the per-token (good, bad) delta and the (msgsGood,
// msgsSpam) message-count delta for a direction.
func (d Direction) deltas() (tokenGood, tokenBad, msgGood, msgSpam int64) {
	switch d {
	case RegSpam:
		return 0, 1, 0, 1
	case RegGood:
		return 1, 0, 1, 0
	case UnregSpam:
		return 0, -1, 0, -1
	case UnregGood:
		return -1, 0, -1, 0
	default:
		return 0, 0, 0, 0
	}
}

// Mode selects what the driver does with each message (spec §4.7 steps
// 3–6, §6 CLI surface).
type Mode struct {
	// RegisterBefore, when set, runs the registration transaction for
	// RegisterAs before any classification is attempted (step 3).
	RegisterBefore bool
	RegisterAs     Direction

	// Classify runs scoring against the message (step 4).
	Classify bool

	// Update enables the UPDATE-mode registration of step 5: register as
	// SPAM/HAM based on the verdict and spamicity relative to
	// UpdateThreshold, never on UNSURE.
	Update          bool
	UpdateThreshold float64

	// PassThrough re-emits the message with a verdict header (step 6).
	PassThrough bool
}

// Result is what ClassifyAndMaybeRegister reports back for exit-code and
// logging purposes.
type Result struct {
	Verdict   scorer.Verdict
	Spamicity float64
	Robn      int
	Stats     reporter.Stats
}

// Driver binds the store, wordlist chain, and scorer configuration for a
// run (spec §4.7: "the loop that binds the above").
type Driver struct {
	chain       *wordlist.Chain
	write       *store.DB // first (writable) list in chain, used for registration
	scorer      scorer.Config
	lexerCfg    lexer.Config
	header      string
	threshStats float64
	log         *logger.Logger

	// fDie mirrors the teacher's lock-minimal atomic counters: a hot-path
	// flag set by RequestShutdown and read by ShuttingDown, without a mutex
	// on every message.
	fDie atomic.Bool
}

// NewDriver builds a Driver from an already-open wordlist chain. write is
// the list registration transactions are applied to — conventionally the
// first (highest-precedence) list in chain. threshStats is config's
// thresh_stats (spec §6): when positive, a message whose spamicity exceeds
// it gets its R-table appended to pass-through output (or logged otherwise),
// the same condition the original's rob_print_bogostats uses
// ("spamicity > thresh_stats"). Zero disables it.
func NewDriver(chain *wordlist.Chain, write *store.DB, sc scorer.Config, lexCfg lexer.Config, headerName string, threshStats float64, log *logger.Logger) *Driver {
	if headerName == "" {
		headerName = bogoheader.DefaultHeaderName
	}
	return &Driver{chain: chain, write: write, scorer: sc, lexerCfg: lexCfg, header: headerName, threshStats: threshStats, log: log}
}

// RequestShutdown marks fDie so that ShuttingDown reports true. It does not
// interrupt or refuse ClassifyAndMaybeRegister calls; a caller's message
// loop checks ShuttingDown after each message and stops there.
func (d *Driver) RequestShutdown() { d.fDie.Store(true) }

// ShuttingDown reports whether RequestShutdown has been called.
func (d *Driver) ShuttingDown() bool { return d.fDie.Load() }

// ClassifyAndMaybeRegister is the driver's single entry point (spec §4.7
// steps 1–6). It reads one message from r, builds its PerMessageHash, and
// dispatches according to mode. w receives the pass-through output when
// mode.PassThrough is set; it may be nil otherwise.
func (d *Driver) ClassifyAndMaybeRegister(r io.Reader, w io.Writer, mode Mode) (Result, error) {
	d.log.Debugf("message_start", "mode=%+v", mode)

	var buf []byte
	var msg io.Reader = r
	if mode.PassThrough {
		var err error
		buf, err = io.ReadAll(r)
		if err != nil {
			return Result{}, fmt.Errorf("read message: %w", err)
		}
		msg = newByteReader(buf)
	}

	hash := postproc.Run(msg, d.lexerCfg)

	if mode.RegisterBefore {
		if err := d.register(hash, mode.RegisterAs); err != nil {
			return Result{}, fmt.Errorf("register before pass: %w", err)
		}
		d.log.Infof("register", "direction=%d tokens=%d", mode.RegisterAs, hash.Len())
	}

	var result Result
	if mode.Classify {
		score, err := d.classify(hash)
		if err != nil {
			return Result{}, fmt.Errorf("classify: %w", err)
		}
		result = Result{
			Verdict:   score.Verdict,
			Spamicity: score.Spamicity,
			Robn:      score.Robn,
			Stats:     reporter.Snapshot(d.scorer.Algorithm.String(), score),
		}
		d.log.Info("verdict", result.Stats.Summary())

		if mode.Update && score.Verdict != scorer.Unsure {
			if err := d.applyUpdate(hash, score, mode.UpdateThreshold); err != nil {
				return Result{}, fmt.Errorf("update registration: %w", err)
			}
		}
	}

	showStats := mode.Classify && d.threshStats > 0 && result.Spamicity > d.threshStats

	if mode.PassThrough {
		value := bogoheader.Value(result.Verdict, result.Spamicity)
		if err := bogoheader.Rewrite(w, newByteReader(buf), d.header, value); err != nil {
			return Result{}, fmt.Errorf("pass-through rewrite: %w", err)
		}
		if showStats {
			if _, err := io.WriteString(w, result.Stats.FormatRTable()); err != nil {
				return Result{}, fmt.Errorf("pass-through rtable: %w", err)
			}
		}
	} else if showStats {
		d.log.Infof("rtable", "\n%s", result.Stats.FormatRTable())
	}

	return result, nil
}

// applyUpdate implements spec §4.7 step 5: register as SPAM when verdict is
// SPAM and spamicity <= 1-threshold, or as HAM when verdict is HAM and
// spamicity >= threshold. Never called with an UNSURE verdict.
func (d *Driver) applyUpdate(hash *postproc.Hash, score scorer.Score, threshold float64) error {
	switch score.Verdict {
	case scorer.Spam:
		if score.Spamicity <= 1-threshold {
			return d.register(hash, RegSpam)
		}
	case scorer.Ham:
		if score.Spamicity >= threshold {
			return d.register(hash, RegGood)
		}
	}
	return nil
}

// classify resolves each token's wordlist counts, computes its per-token
// probability, and combines the evidence into a Score (spec §4.6/§4.7 step
// 4).
func (d *Driver) classify(hash *postproc.Hash) (scorer.Score, error) {
	maxRepeats := d.scorer.MaxRepeats()

	var evidence []scorer.TokenEvidence
	var walkErr error
	hash.Each(func(key []byte, prop *postproc.WordProp) bool {
		counts, err := d.chain.Lookup(key)
		if err != nil {
			walkErr = err
			return false
		}
		p, contributes := d.scorer.TokenProb(counts, counts.Good, counts.Bad)
		if !contributes {
			return true
		}
		reps := postproc.Repeats(prop.Freq, maxRepeats)
		for i := uint32(0); i < reps; i++ {
			evidence = append(evidence, scorer.TokenEvidence{Word: string(key), Prob: p})
		}
		return true
	})
	if walkErr != nil {
		return scorer.Score{}, walkErr
	}

	return d.scorer.Classify(evidence), nil
}

// register applies the spec §4.7 registration transaction for one message's
// hash: for each token, cur + deltas clamped at 0, then update .MSG_COUNT,
// all within a single write transaction so a crash mid-registration never
// leaves partial counts (spec P1 register-unregister symmetry). Each
// token's contribution is capped at max_repeats (same cap the scorer
// applies), so registering and then unregistering the same message always
// nets to exactly zero regardless of how many times a word repeated.
func (d *Driver) register(hash *postproc.Hash, dir Direction) error {
	if d.write == nil {
		return fmt.Errorf("register: %w", errs.ConfigError)
	}
	tokenGood, tokenBad, msgGood, msgSpam := dir.deltas()
	maxRepeats := d.scorer.MaxRepeats()

	return d.write.WithWriteTxn(func(tx *store.Txn) error {
		var txErr error
		hash.Each(func(key []byte, prop *postproc.WordProp) bool {
			cur, err := tx.Get(key)
			if err != nil && !isNotFound(err) {
				txErr = err
				return false
			}
			reps := int64(postproc.Repeats(prop.Freq, maxRepeats))
			next := cur.Clamped(tokenGood*reps, tokenBad*reps)
			if err := tx.Put(key, next); err != nil {
				txErr = err
				return false
			}
			return true
		})
		if txErr != nil {
			return txErr
		}
		return wordlist.IncrementMsgCount(tx, msgGood, msgSpam)
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.NotFound)
}
