// Package store is the transactional, ordered, crash-safe key→TokenRecord
// store (spec §4.4). It layers the spec's environment-level locking,
// endian-neutrality, file-size guard, and recovery-sentinel protocol on top
// of go.etcd.io/bbolt, which already provides the ordered b+tree scans,
// MVCC snapshot reads, and atomic multi-key commits the spec's Ordering and
// Atomicity invariants require — no hand-rolled write-ahead log is needed.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sys/unix"

	"bogofilter-go/internal/errs"
	"bogofilter-go/internal/logger"
)

const (
	dbFileName       = "wordlist.db"
	lockFileName     = "lockfile-d"
	sentinelFileName = "needs-recovery"

	metaBucket  = "__meta__"
	metaSwapped = "swapped"

	// minFreePages / minFreeBytes implement the file-size guard (spec §4.4):
	// refuse below 16 pages of headroom, warn below 2 MiB.
	pageSize      = 4096
	minFreePages  = 16
	minFreeBytes  = 2 << 20
	minFreeFatal  = minFreePages * pageSize
	defaultCache  = 4 << 20 // 4 MiB, spec §4.4 default page cache size
	writerTimeout = 50 * time.Millisecond
)

// Options configures OpenEnv.
type Options struct {
	// CacheSizeMiB maps to bbolt's InitialMmapSize hint (spec's
	// db_cachesize). Zero uses the 4 MiB default.
	CacheSizeMiB int
	Log          *logger.Logger
}

// Env is an open token-store environment: one directory holding
// wordlist.db, lockfile-d, and the needs-recovery sentinel.
type Env struct {
	dir     string
	lock    *environmentLock
	db      *bolt.DB
	swapped bool
	log     *logger.Logger
}

// OpenEnv opens (creating if necessary) the environment at dir, running the
// recovery protocol first if a previous writer crashed (spec §4.4 Recovery
// protocol).
func OpenEnv(dir string, opts Options) (*Env, error) {
	log := opts.Log
	if log == nil {
		log = logger.New("STORE", "info")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create env dir %q: %w", dir, err)
	}

	if err := checkFileSizeGuard(dir, log); err != nil {
		return nil, err
	}

	lock, err := openEnvironmentLock(dir)
	if err != nil {
		return nil, err
	}
	if err := lock.acquireShared(); err != nil {
		lock.close() //nolint:errcheck
		return nil, err
	}

	if sentinelPresent(dir) {
		log.Warnf("recover", "needs-recovery sentinel present in %s, running recovery", dir)
		if err := lock.release(); err != nil {
			lock.close() //nolint:errcheck
			return nil, err
		}
		if err := lock.acquireExclusive(); err != nil {
			lock.close() //nolint:errcheck
			return nil, err
		}
		if err := runRecovery(dir, false, log); err != nil {
			if catErr := runRecovery(dir, true, log); catErr != nil {
				lock.close() //nolint:errcheck
				return nil, fmt.Errorf("catastrophic recovery: %w", catErr)
			}
		}
		if err := clearSentinel(dir); err != nil {
			lock.close() //nolint:errcheck
			return nil, err
		}
		if err := lock.downgrade(); err != nil {
			lock.close() //nolint:errcheck
			return nil, err
		}
	}

	cacheSize := opts.CacheSizeMiB
	if cacheSize <= 0 {
		cacheSize = defaultCache
	} else {
		cacheSize = cacheSize << 20
	}

	db, err := bolt.Open(dbPath(dir), 0o600, &bolt.Options{
		Timeout:         writerTimeout,
		InitialMmapSize: cacheSize,
	})
	if err != nil {
		lock.close() //nolint:errcheck
		return nil, fmt.Errorf("open %s: %w", dbFileName, err)
	}

	if err := markOpenForWrite(dir); err != nil {
		db.Close() //nolint:errcheck
		lock.close() //nolint:errcheck
		return nil, err
	}

	swapped, err := loadOrInitSwappedFlag(db)
	if err != nil {
		db.Close() //nolint:errcheck
		lock.close() //nolint:errcheck
		return nil, err
	}

	return &Env{dir: dir, lock: lock, db: db, swapped: swapped, log: log}, nil
}

// Close commits a clean shutdown: it clears the needs-recovery sentinel (set
// by markOpenForWrite at open time) before releasing the environment lock.
func (e *Env) Close() error {
	if err := clearSentinel(e.dir); err != nil {
		e.log.Warnf("close", "clear sentinel: %v", err)
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dbFileName, err)
	}
	return e.lock.close()
}

// Swapped reports whether stored TokenRecord values were written by a
// foreign-endian writer and must be decoded with swapped byte order.
func (e *Env) Swapped() bool { return e.swapped }

func lockfilePath(dir string) string  { return filepath.Join(dir, lockFileName) }
func sentinelPath(dir string) string  { return filepath.Join(dir, sentinelFileName) }
func dbPath(dir string) string        { return filepath.Join(dir, dbFileName) }

func sentinelPresent(dir string) bool {
	_, err := os.Stat(sentinelPath(dir))
	return err == nil
}

// markOpenForWrite creates the needs-recovery sentinel; a subsequent clean
// Close clears it. A process that crashes between the two leaves it behind
// for the next OpenEnv to discover.
func markOpenForWrite(dir string) error {
	f, err := os.OpenFile(sentinelPath(dir), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create needs-recovery sentinel: %w", err)
	}
	return f.Close()
}

func clearSentinel(dir string) error {
	err := os.Remove(sentinelPath(dir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove needs-recovery sentinel: %w", err)
	}
	return nil
}

// checkFileSizeGuard compares wordlist.db's size against the process's
// RLIMIT_FSIZE file-size resource limit (spec §4.4 File-size guard). A
// not-yet-existing database has no size to guard, so it's skipped.
func checkFileSizeGuard(dir string, log *logger.Logger) error {
	info, err := os.Stat(dbPath(dir))
	if err != nil {
		return nil // fresh environment
	}

	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_FSIZE, &rl); err != nil {
		return fmt.Errorf("getrlimit RLIMIT_FSIZE: %w", err)
	}
	if rl.Cur == unix.RLIM_INFINITY {
		return nil
	}

	free := int64(rl.Cur) - info.Size()
	if free < minFreeFatal {
		return fmt.Errorf("%s has only %d bytes of headroom under RLIMIT_FSIZE: %w", dbFileName, free, errs.LimitExceeded)
	}
	if free < minFreeBytes {
		log.Warnf("open", "%s has only %d bytes of headroom under RLIMIT_FSIZE", dbFileName, free)
	}
	return nil
}

func loadOrInitSwappedFlag(db *bolt.DB) (bool, error) {
	var swapped bool
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		v := b.Get([]byte(metaSwapped))
		if v == nil {
			// Fresh environment: this implementation always writes
			// little-endian, so the flag starts cleared.
			return b.Put([]byte(metaSwapped), []byte{0})
		}
		swapped = v[0] != 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("load swapped flag: %w", err)
	}
	return swapped, nil
}

// SetSwappedForTest forcibly flips the stored swapped flag. Exercised by the
// endian round-trip test (spec P6) to simulate a database written by a
// foreign-endian host without needing an actual big-endian machine.
func (e *Env) SetSwappedForTest(swapped bool) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(metaBucket))
		v := byte(0)
		if swapped {
			v = 1
		}
		return b.Put([]byte(metaSwapped), []byte{v})
	})
	if err != nil {
		return err
	}
	e.swapped = swapped
	return nil
}
