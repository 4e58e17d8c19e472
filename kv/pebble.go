package kv

import (
	"bytes"

	"github.com/cockroachdb/pebble"
)

// A sublevel is a key prefix: name bytes, then one zero byte, then the
// user key. Sublevel names must not contain zero bytes.
const sublevelDelim byte = 0x00

var writeOptions = pebble.WriteOptions{Sync: false}

// Pebble is the production Store.
type Pebble struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func mangle(sublevel string, key []byte) []byte {
	out := make([]byte, 0, len(sublevel)+1+len(key))
	out = append(out, sublevel...)
	out = append(out, sublevelDelim)
	return append(out, key...)
}

func (p *Pebble) Get(sublevel string, key []byte) ([]byte, error) {
	val, closer, err := p.db.Get(mangle(sublevel, key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	_ = closer.Close()
	return out, nil
}

func (p *Pebble) Put(sublevel string, key, value []byte) error {
	return p.db.Set(mangle(sublevel, key), value, &writeOptions)
}

func (p *Pebble) Del(sublevel string, key []byte) error {
	return p.db.Delete(mangle(sublevel, key), &writeOptions)
}

func (p *Pebble) Batch(ops []Op) error {
	b := p.db.NewBatch()
	for _, op := range ops {
		var err error
		if op.Del {
			err = b.Delete(mangle(op.Sublevel, op.Key), nil)
		} else {
			err = b.Set(mangle(op.Sublevel, op.Key), op.Value, nil)
		}
		if err != nil {
			_ = b.Close()
			return err
		}
	}
	return p.db.Apply(b, &writeOptions)
}

func (p *Pebble) Iterator(sublevel string, r Range) (Iterator, error) {
	prefix := mangle(sublevel, nil)

	lower := prefix
	switch {
	case r.Gt != nil:
		// strict successor of the exclusive bound
		lower = append(mangle(sublevel, r.Gt), 0x00)
	case r.Gte != nil:
		lower = mangle(sublevel, r.Gte)
	}

	// successor of the sublevel prefix bounds the whole namespace
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	upper[len(upper)-1] = sublevelDelim + 1
	switch {
	case r.Lt != nil:
		upper = mangle(sublevel, r.Lt)
	case r.Lte != nil:
		upper = append(mangle(sublevel, r.Lte), 0x00)
	}

	// an inverted range scans nothing
	if bytes.Compare(upper, lower) < 0 {
		upper = lower
	}

	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it, prefix: len(prefix), reverse: r.Reverse}, nil
}

func (p *Pebble) Clear() error {
	return p.db.DeleteRange([]byte{0x00}, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, &writeOptions)
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleIterator struct {
	it      *pebble.Iterator
	prefix  int
	reverse bool
	started bool
}

func (i *pebbleIterator) Next() bool {
	if !i.started {
		i.started = true
		if i.reverse {
			return i.it.Last()
		}
		return i.it.First()
	}
	if i.reverse {
		return i.it.Prev()
	}
	return i.it.Next()
}

func (i *pebbleIterator) Key() []byte {
	return i.it.Key()[i.prefix:]
}

func (i *pebbleIterator) Value() []byte {
	return i.it.Value()
}

func (i *pebbleIterator) Close() error {
	return i.it.Close()
}
