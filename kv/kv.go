// Package kv defines the ordered key-value store the engine runs on: flat
// byte-ordered pairs partitioned into named sublevels, point reads, atomic
// batches across sublevels, and bounded range iteration.
package kv

import "errors"

// ErrNotFound is the store's not-found sentinel.
var ErrNotFound = errors.New("kv: not found")

// Op is one element of an atomic batch. Del selects delete over put.
type Op struct {
	Sublevel string
	Del      bool
	Key      []byte
	Value    []byte
}

// Range bounds one iteration inside a sublevel. Zero-value bounds are
// open; Gt/Lt are exclusive, Gte/Lte inclusive. Exclusive bounds win when
// both are set.
type Range struct {
	Gt      []byte
	Gte     []byte
	Lt      []byte
	Lte     []byte
	Reverse bool
}

type Iterator interface {
	// Next advances to the next pair, returning false at the end. The
	// first call positions on the first pair.
	Next() bool
	// Key returns the current key with the sublevel prefix stripped. The
	// slice is only valid until the next call to Next.
	Key() []byte
	Value() []byte
	Close() error
}

type Store interface {
	Get(sublevel string, key []byte) ([]byte, error)
	Put(sublevel string, key, value []byte) error
	Del(sublevel string, key []byte) error
	// Batch applies all ops atomically.
	Batch(ops []Op) error
	Iterator(sublevel string, r Range) (Iterator, error)
	// Clear wipes every sublevel.
	Clear() error
	Close() error
}
