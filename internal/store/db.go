package store

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"math/rand"

	"bogofilter-go/internal/errs"
)

// Mode selects read or write access for DB_open.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// DB is a handle to one logical wordlist's bucket within an environment.
type DB struct {
	env    *Env
	name   string
	mode   Mode
	bucket []byte
}

// OpenDB opens (creating under ReadWrite, erroring under ReadOnly) the named
// logical wordlist within env (spec §4.4 db_open).
func OpenDB(env *Env, name string, mode Mode) (*DB, error) {
	bucket := []byte(name)
	if mode == ReadWrite {
		err := env.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucket)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", name, err)
		}
	} else {
		err := env.db.View(func(tx *bolt.Tx) error {
			if tx.Bucket(bucket) == nil {
				return fmt.Errorf("wordlist %q: %w", name, errs.NotFound)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return &DB{env: env, name: name, mode: mode, bucket: bucket}, nil
}

// Txn is a single transaction bound to one DB (spec §3 TransactionContext).
type Txn struct {
	db *DB
	tx *bolt.Tx
}

func (t *Txn) bucket() *bolt.Bucket { return t.tx.Bucket(t.db.bucket) }

// Get looks up key, returning errs.NotFound (wrapped) if absent.
func (t *Txn) Get(key []byte) (TokenRecord, error) {
	v := t.bucket().Get(key)
	if v == nil {
		return TokenRecord{}, fmt.Errorf("get %q: %w", key, errs.NotFound)
	}
	return decodeRecord(v, t.db.env.swapped), nil
}

// Put overwrites or inserts key's record.
func (t *Txn) Put(key []byte, rec TokenRecord) error {
	return t.bucket().Put(key, encodeRecord(rec))
}

// Del removes key; a missing key is not an error (spec §4.4 del).
func (t *Txn) Del(key []byte) error {
	return t.bucket().Delete(key)
}

// Scan visits every key in lexicographic order (spec §4.4 Ordering
// invariant), stopping early if visit returns false.
func (t *Txn) Scan(visit func(key []byte, rec TokenRecord) bool) error {
	c := t.bucket().Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if !visit(k, decodeRecord(v, t.db.env.swapped)) {
			break
		}
	}
	return nil
}

const maxWriteRetries = 8

// WithWriteTxn runs fn inside one write transaction, committing on success
// and aborting (rolling back) on error. If bbolt's cross-process writer lock
// times out (another process holds the write lock), it is surfaced as
// errs.TempFail after a bounded number of retries with jittered backoff
// (spec §4.4 Deadlock handling, §9 two-phase registration retry).
func (d *DB) WithWriteTxn(fn func(*Txn) error) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		err := d.env.db.Update(func(tx *bolt.Tx) error {
			return fn(&Txn{db: d, tx: tx})
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, bolt.ErrTimeout) {
			lastErr = err
			time.Sleep(jitterBackoff())
			continue
		}
		return err
	}
	return fmt.Errorf("registration transaction exhausted retries: %w: %w", errs.TempFail, lastErr)
}

// WithReadTxn runs fn inside one read-only (snapshot-isolated) transaction.
func (d *DB) WithReadTxn(fn func(*Txn) error) error {
	return d.env.db.View(func(tx *bolt.Tx) error {
		return fn(&Txn{db: d, tx: tx})
	})
}

// jitterBackoff returns a random delay in [4ms, 100ms), the retry window
// spec §4.7 mandates for deadlock retries.
func jitterBackoff() time.Duration {
	const minMS, maxMS = 4, 100
	return time.Duration(minMS+rand.Intn(maxMS-minMS)) * time.Millisecond
}
