// Command bogofilter classifies mail messages as spam, ham, or unsure, and
// maintains the good/spam token-frequency store they are scored against.
//
// Usage:
//
//	bogofilter [mode] [options] < message
//
// Mode flags (default: classify):
//
//	-s    register message(s) as spam
//	-n    register message(s) as ham
//	-S    unregister message(s) as spam
//	-N    unregister message(s) as ham
//	-u    update mode: classify, then register per thresh_update
//
// Options:
//
//	-p    pass-through: write message to stdout with a verdict header
//	-M    treat stdin as an mbox (multiple messages), not one message
//	-e    invert exit codes, for procmail recipes
//	-v PATH     verify the wordlist store at PATH
//	-recover    run the recovery protocol against BOGOFILTER_DIR
//	-purge-logs compact the store, reclaiming space
//
// Exit codes: 0 = SPAM, 1 = HAM, 2 = UNSURE, 3 = error (inverted by -e).
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"bogofilter-go/internal/classifier"
	"bogofilter-go/internal/config"
	"bogofilter-go/internal/errs"
	"bogofilter-go/internal/lexer"
	"bogofilter-go/internal/logger"
	"bogofilter-go/internal/scorer"
	"bogofilter-go/internal/source"
	"bogofilter-go/internal/store"
	"bogofilter-go/internal/wordlist"
)

const (
	exitSpam   = 0
	exitHam    = 1
	exitUnsure = 2
	exitError  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("bogofilter", flag.ContinueOnError)
	regSpam := fs.Bool("s", false, "register message(s) as spam")
	regHam := fs.Bool("n", false, "register message(s) as ham")
	unregSpam := fs.Bool("S", false, "unregister message(s) as spam")
	unregHam := fs.Bool("N", false, "unregister message(s) as ham")
	update := fs.Bool("u", false, "update mode: classify, then register per thresh_update")
	passThrough := fs.Bool("p", false, "pass-through: write message with verdict header")
	mbox := fs.Bool("M", false, "treat input as an mbox with multiple messages")
	invert := fs.Bool("e", false, "invert exit codes for procmail")
	verifyPath := fs.String("v", "", "verify the wordlist store at PATH")
	runRecover := fs.Bool("recover", false, "run the recovery protocol against the store")
	catastrophic := fs.Bool("recover-catastrophic", false, "force catastrophic recovery")
	purgeLogs := fs.Bool("purge-logs", false, "compact the store, reclaiming space")
	dump := fs.Bool("dump", false, "dump the wordlist as tab-separated word/good/bad lines")
	restore := fs.Bool("restore", false, "restore the wordlist from dump format on stdin")

	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg := config.Load()
	log := logger.New("BOGOFILTER", cfg.LogLevel)

	switch {
	case *verifyPath != "":
		if err := store.Verify(*verifyPath); err != nil {
			log.Errorf("verify", "%v", err)
			return exitError
		}
		fmt.Fprintln(stdout, "ok")
		return exitSpam
	case *runRecover:
		if err := store.Recover(cfg.WordlistDir, *catastrophic, log); err != nil {
			log.Errorf("recover", "%v", err)
			return exitError
		}
		return exitSpam
	case *purgeLogs:
		return runPurgeLogs(cfg, log)
	case *dump:
		return runDump(cfg, log, stdout)
	case *restore:
		return runRestore(cfg, log, stdin)
	}

	mode, err := resolveMode(*regSpam, *regHam, *unregSpam, *unregHam, *update, *passThrough, cfg)
	if err != nil {
		log.Errorf("config", "%v", err)
		return exitError
	}

	needsWrite := mode.RegisterBefore || mode.Update
	driver, closeFn, err := buildDriver(cfg, log, needsWrite)
	if err != nil {
		log.Errorf("startup", "%v", err)
		return exitError
	}
	defer closeFn()

	var reader source.MessageReader
	if *mbox {
		reader = source.NewMbox(stdin)
	} else {
		reader = source.NewSingle(stdin)
	}

	exitCode := exitUnsure
	for {
		msg, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Errorf("read", "%v", err)
			return invertIfNeeded(exitError, *invert)
		}

		result, err := driver.ClassifyAndMaybeRegister(msg, stdout, mode)
		if err != nil {
			log.Errorf("classify", "%v", err)
			return invertIfNeeded(exitError, *invert)
		}
		if mode.Classify {
			exitCode = verdictExitCode(result.Verdict)
		} else {
			exitCode = exitSpam
		}

		if driver.ShuttingDown() {
			break
		}
	}

	return invertIfNeeded(exitCode, *invert)
}

// resolveMode maps the CLI's mutually-exclusive mode flags onto a
// classifier.Mode, the way the original's run_type bitmask selects
// register_bef/register_aft/classify_msg (spec §4.7 step ordering). The
// original distinguishes registering before or after classification only to
// decide when words get freed in its bulk accumulation path; since this
// implementation registers each message immediately rather than
// accumulating a MergedHash, the distinction collapses and registration
// always happens against the built-per-message hash, whether or not
// pass-through is requested.
func resolveMode(regSpam, regHam, unregSpam, unregHam, update, passThrough bool, cfg *config.Config) (classifier.Mode, error) {
	n := 0
	var dir classifier.Direction
	if regSpam {
		dir, n = classifier.RegSpam, n+1
	}
	if regHam {
		dir, n = classifier.RegGood, n+1
	}
	if unregSpam {
		dir, n = classifier.UnregSpam, n+1
	}
	if unregHam {
		dir, n = classifier.UnregGood, n+1
	}
	if n > 1 {
		return classifier.Mode{}, fmt.Errorf("only one of -s/-n/-S/-N may be given")
	}

	registerOpt := n == 1
	return classifier.Mode{
		RegisterBefore:  registerOpt,
		RegisterAs:      dir,
		Classify:        !registerOpt || update,
		Update:          update,
		UpdateThreshold: cfg.ThreshUpdate,
		PassThrough:     passThrough,
	}, nil
}

func buildDriver(cfg *config.Config, log *logger.Logger, needsWrite bool) (*classifier.Driver, func(), error) {
	env, err := store.OpenEnv(cfg.WordlistDir, store.Options{CacheSizeMiB: cfg.DBCacheSizeMiB, Log: log})
	if err != nil {
		return nil, nil, fmt.Errorf("open environment: %w", err)
	}

	mode := store.ReadOnly
	if needsWrite {
		mode = store.ReadWrite
	}
	db, err := store.OpenDB(env, "wordlist.db", mode)
	if errors.Is(err, errs.NotFound) {
		// A fresh environment has no wordlist yet: create it empty so
		// classification proceeds with zero counts.
		db, err = store.OpenDB(env, "wordlist.db", store.ReadWrite)
	}
	if err != nil {
		env.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("open wordlist: %w", err)
	}

	chain := wordlist.NewChain([]*wordlist.List{{Name: "main", DB: db, Type: wordlist.Normal, Override: 0}})

	algo := scorer.Fisher
	switch cfg.AlgorithmName() {
	case "graham":
		algo = scorer.Graham
	case "robinson":
		algo = scorer.Robinson
	}
	scCfg := scorer.Config{
		Algorithm:          algo,
		MinDev:             cfg.MinDev,
		ROBS:               cfg.ROBS,
		ROBX:               cfg.ROBX,
		SpamCutoff:         cfg.SpamCutoff,
		HamCutoff:          cfg.HamCutoff,
		MaxRepeatsOverride: uint32(cfg.MaxRepeats),
	}

	lexCfg := lexer.Config{
		ReplaceNonASCII:   cfg.ReplaceNonASCIICharacters,
		BlockOnSubnets:    cfg.BlockOnSubnets,
		TagHeaderLines:    cfg.TagHeaderLines,
		KillHTMLComments:  cfg.KillHTMLComments,
		CountHTMLComments: cfg.CountHTMLComments,
		ScoreHTMLComments: cfg.ScoreHTMLComments,
		CharsetDefault:    cfg.CharsetDefault,
	}
	driver := classifier.NewDriver(chain, db, scCfg, lexCfg, cfg.SpamHeaderName, cfg.ThreshStats, log)

	closeFn := func() {
		if err := env.Close(); err != nil {
			log.Warnf("shutdown", "close environment: %v", err)
		}
	}
	return driver, closeFn, nil
}

func runPurgeLogs(cfg *config.Config, log *logger.Logger) int {
	env, err := store.OpenEnv(cfg.WordlistDir, store.Options{Log: log})
	if err != nil {
		log.Errorf("purge-logs", "%v", err)
		return exitError
	}
	defer env.Close() //nolint:errcheck
	if err := env.PurgeLogs(); err != nil {
		log.Errorf("purge-logs", "%v", err)
		return exitError
	}
	return exitSpam
}

func runDump(cfg *config.Config, log *logger.Logger, stdout io.Writer) int {
	env, err := store.OpenEnv(cfg.WordlistDir, store.Options{Log: log})
	if err != nil {
		log.Errorf("dump", "%v", err)
		return exitError
	}
	defer env.Close() //nolint:errcheck

	db, err := store.OpenDB(env, "wordlist.db", store.ReadOnly)
	if err != nil {
		log.Errorf("dump", "%v", err)
		return exitError
	}

	err = db.WithReadTxn(func(tx *store.Txn) error {
		return tx.Scan(func(key []byte, rec store.TokenRecord) bool {
			fmt.Fprintf(stdout, "%s\t%d\t%d\n", key, rec.Good, rec.Bad)
			return true
		})
	})
	if err != nil {
		log.Errorf("dump", "%v", err)
		return exitError
	}
	return exitSpam
}

func runRestore(cfg *config.Config, log *logger.Logger, stdin io.Reader) int {
	env, err := store.OpenEnv(cfg.WordlistDir, store.Options{Log: log})
	if err != nil {
		log.Errorf("restore", "%v", err)
		return exitError
	}
	defer env.Close() //nolint:errcheck

	db, err := store.OpenDB(env, "wordlist.db", store.ReadWrite)
	if err != nil {
		log.Errorf("restore", "%v", err)
		return exitError
	}

	if err := restoreLines(db, stdin); err != nil {
		log.Errorf("restore", "%v", err)
		return exitError
	}
	return exitSpam
}

// restoreLines reads dump-format "word\tgood\tbad" lines and writes each
// token's record directly, one write transaction per line (the restore
// counterpart to runDump's Scan, not a registration — it sets records
// rather than deltas).
func restoreLines(db *store.DB, r io.Reader) error {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return fmt.Errorf("restore: malformed line %q", line)
		}
		good, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return fmt.Errorf("restore: bad good count in %q: %w", line, err)
		}
		bad, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return fmt.Errorf("restore: bad bad count in %q: %w", line, err)
		}
		key := []byte(fields[0])
		rec := store.TokenRecord{Good: uint32(good), Bad: uint32(bad)}
		if err := db.WithWriteTxn(func(tx *store.Txn) error {
			return tx.Put(key, rec)
		}); err != nil {
			return fmt.Errorf("restore: put %q: %w", fields[0], err)
		}
	}
	return scan.Err()
}

func verdictExitCode(v scorer.Verdict) int {
	switch v {
	case scorer.Spam:
		return exitSpam
	case scorer.Ham:
		return exitHam
	default:
		return exitUnsure
	}
}

func invertIfNeeded(code int, invert bool) int {
	if !invert {
		return code
	}
	switch code {
	case exitSpam:
		return exitHam
	case exitHam:
		return exitSpam
	default:
		return code
	}
}
