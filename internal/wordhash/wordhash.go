// Package wordhash implements the insertion-ordered, arena-backed hash map
// used for the PerMessageHash (spec §3, §4.1).
//
// Keys are arbitrary byte strings, copied into the hash's own string arena on
// first insertion. Payloads are caller-typed and allocated from a node arena
// alongside the hash's bookkeeping fields, so a whole message's worth of
// tokens lives in a handful of contiguous chunks instead of scattered
// per-token heap allocations. There is no delete operation: Reset releases
// every entry at once. The classifier driver builds a fresh hash for each
// message and drops it afterwards rather than calling Reset.
package wordhash

import "bogofilter-go/internal/arena"

// DefaultBuckets is the fixed bucket count, a prime chosen close to 30,000
// as specified (spec §4.1).
const DefaultBuckets = 30011

type entry[T any] struct {
	key  []byte
	val  T
	next *entry[T] // next in this bucket's collision chain

	// insertion-order doubly linked list
	iprev, inext *entry[T]
}

// Hash is an insertion-ordered map from byte-string keys to caller-typed
// payloads of type T. The zero value is not usable; construct with New.
type Hash[T any] struct {
	buckets []*entry[T]
	nodes   *arena.NodeArena[entry[T]]
	strs    *arena.StringArena

	head, tail *entry[T] // insertion order list
	size       int
}

// New creates an empty Hash with the default bucket count.
func New[T any]() *Hash[T] {
	return NewSize[T](DefaultBuckets)
}

// NewSize creates an empty Hash with an explicit bucket count (mainly for
// tests exercising collision handling).
func NewSize[T any](buckets int) *Hash[T] {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &Hash[T]{
		buckets: make([]*entry[T], buckets),
		nodes:   arena.NewNodeArena[entry[T]](arena.DefaultNodeChunkSize),
		strs:    arena.NewStringArena(arena.DefaultStringChunkSize),
	}
}

// hashBytes computes Bentley's multiplicative hash (h = 31*h + byte) over
// the full key, as specified.
func hashBytes(key []byte) uint64 {
	var h uint64
	for _, b := range key {
		h = 31*h + uint64(b)
	}
	return h
}

func (h *Hash[T]) bucketFor(key []byte) int {
	return int(hashBytes(key) % uint64(len(h.buckets)))
}

// Insert returns a pointer to the payload for key, creating it (via init, if
// non-nil) if key is not already present. If key already exists, its
// existing payload pointer is returned unchanged — init is not called again.
func (h *Hash[T]) Insert(key []byte, init func(*T)) *T {
	idx := h.bucketFor(key)
	for e := h.buckets[idx]; e != nil; e = e.next {
		if string(e.key) == string(key) {
			return &e.val
		}
	}

	e := h.nodes.Alloc()
	e.key = h.strs.AllocCopy(key)
	e.next = h.buckets[idx]
	h.buckets[idx] = e

	if init != nil {
		init(&e.val)
	}

	if h.tail == nil {
		h.head, h.tail = e, e
	} else {
		e.iprev = h.tail
		h.tail.inext = e
		h.tail = e
	}
	h.size++
	return &e.val
}

// Get returns the payload for key without inserting, and whether it was
// found.
func (h *Hash[T]) Get(key []byte) (*T, bool) {
	idx := h.bucketFor(key)
	for e := h.buckets[idx]; e != nil; e = e.next {
		if string(e.key) == string(key) {
			return &e.val, true
		}
	}
	return nil, false
}

// Len reports the number of distinct keys inserted.
func (h *Hash[T]) Len() int { return h.size }

// Reset bulk-frees the node and string arenas and clears all buckets and the
// insertion-order list. After Reset, the Hash is empty and may be reused.
func (h *Hash[T]) Reset() {
	h.nodes.Reset()
	h.strs.Reset()
	for i := range h.buckets {
		h.buckets[i] = nil
	}
	h.head, h.tail = nil, nil
	h.size = 0
}

// Iterator walks a Hash's entries in first-insertion order.
type Iterator[T any] struct {
	cur *entry[T]
}

// Iter starts an iteration over h's entries in insertion order (spec P9).
func (h *Hash[T]) Iter() *Iterator[T] {
	return &Iterator[T]{cur: h.head}
}

// Next returns the next key/value pair, or ok=false at the end of the
// iteration. The returned key slice is owned by the hash's string arena and
// must not be mutated.
func (it *Iterator[T]) Next() (key []byte, val *T, ok bool) {
	if it.cur == nil {
		return nil, nil, false
	}
	key, val = it.cur.key, &it.cur.val
	it.cur = it.cur.inext
	return key, val, true
}

// Each visits every entry in insertion order. fn returning false stops the
// iteration early.
func (h *Hash[T]) Each(fn func(key []byte, val *T) bool) {
	for e := h.head; e != nil; e = e.inext {
		if !fn(e.key, &e.val) {
			return
		}
	}
}
