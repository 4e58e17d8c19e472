// Package sortkey encodes typed field values into a byte space whose
// lexicographic order matches the source domain order, and assembles them
// into composite secondary-index keys.
//
// # Key layout
//
// A composite key for an index over fields f1..fN is
//
//	enc(f1) SEP enc(f2) SEP ... enc(fN) SEP path
//
// where SEP is 0x1F (ASCII unit separator). The document path is always the
// final component, which makes keys injective over (path, index fields).
// Encoded values must not contain SEP; writes carrying such a value are
// rejected with ErrSeparatorInValue rather than escaped.
//
// Per-type encodings:
//
//   - string:    UTF-8 literal
//   - number:    left-padded decimal, default width 4, fill '0'. Negative
//     values are rejected unless the column carries a Pad with an Offset
//     that shifts them non-negative.
//   - boolean:   "0" or "1"
//   - datetime:  RFC 3339 UTC text
//   - reference: the referenced document path
//
// Appending 0xFF to any encoded prefix yields an exclusive upper bound for
// starts-with scans.
package sortkey

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/shelf_errors"
)

const (
	Separator byte = 0x1F
	MaxByte   byte = 0xFF

	DefaultPadWidth = 4
	DefaultPadChar  = '0'

	// FilepathIndex is the default index every collection gets; it has no
	// fields and sorts by primary key alone.
	FilepathIndex = "__filepath__"

	// PathGroup is the decoded-key group name holding the document path.
	PathGroup = "_filepath_"
)

// Pad configures the fixed-width numeric encoding of one index column.
// Offset is added before formatting, which is how callers opt in to
// negative values.
type Pad struct {
	Width  int
	Char   byte
	Offset int64
}

func (p *Pad) width() int {
	if p == nil || p.Width == 0 {
		return DefaultPadWidth
	}
	return p.Width
}

func (p *Pad) fill() byte {
	if p == nil || p.Char == 0 {
		return DefaultPadChar
	}
	return p.Char
}

func (p *Pad) offset() int64 {
	if p == nil {
		return 0
	}
	return p.Offset
}

type Field struct {
	Name string
	Type schema.FieldType
	Pad  *Pad
}

// Definition is an ordered list of index columns for one (collection, sort
// key) pair. A definition with no fields is the default filepath index.
type Definition struct {
	Collection string
	Name       string
	Fields     []Field
}

// Sublevel names the store namespace this index lives in.
func (d *Definition) Sublevel() string {
	return d.Collection + "/" + d.Name
}

func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// EncodeValue formats a single field value for key use.
func EncodeValue(t schema.FieldType, v any, pad *Pad) (string, error) {
	var s string
	switch t {
	case schema.TypeNumber:
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		n += pad.offset()
		if n < 0 {
			return "", shelf_errors.ErrNegativeNumber
		}
		s = padLeft(strconv.FormatInt(n, 10), pad.width(), pad.fill())
	case schema.TypeBoolean:
		b, err := toBool(v)
		if err != nil {
			return "", err
		}
		if b {
			s = "1"
		} else {
			s = "0"
		}
	case schema.TypeDatetime:
		ts, err := toTime(v)
		if err != nil {
			return "", err
		}
		s = ts.UTC().Format(time.RFC3339)
	default: // string, reference
		s = toString(v)
	}
	if strings.IndexByte(s, Separator) >= 0 {
		return "", shelf_errors.ErrSeparatorInValue
	}
	return s, nil
}

// DecodeValue reverses EncodeValue for one column. Unparseable input comes
// back as the raw string; keys of a foreign shape are filtered earlier by
// arity, not here.
func DecodeValue(t schema.FieldType, s string, pad *Pad) any {
	switch t {
	case schema.TypeNumber:
		n, err := strconv.ParseInt(strings.TrimLeft(s, string(pad.fill())), 10, 64)
		if err != nil {
			if strings.Trim(s, string(pad.fill())) == "" && s != "" {
				return -pad.offset() // all fill bytes is an encoded zero
			}
			return s
		}
		return n - pad.offset()
	case schema.TypeBoolean:
		return s == "1"
	case schema.TypeDatetime:
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return s
		}
		return ts
	default:
		return s
	}
}

// Encode builds the full index key for one document. Fields missing from
// the payload encode as the empty string so that every document lands in
// every index of its collection.
func (d *Definition) Encode(doc map[string]any, path string) ([]byte, error) {
	if strings.IndexByte(path, Separator) >= 0 {
		return nil, shelf_errors.ErrSeparatorInValue
	}
	var key bytes.Buffer
	for _, f := range d.Fields {
		v, ok := doc[f.Name]
		if ok && v != nil {
			enc, err := EncodeValue(f.Type, v, f.Pad)
			if err != nil {
				return nil, err
			}
			key.WriteString(enc)
		}
		key.WriteByte(Separator)
	}
	key.WriteString(path)
	return key.Bytes(), nil
}

// Decode parses a stored key back into named groups plus the PathGroup.
// Keys whose arity does not match the definition belong to a different
// index shape and report ok=false.
func (d *Definition) Decode(key []byte) (map[string]string, bool) {
	parts := strings.Split(string(key), string(Separator))
	if len(parts) != len(d.Fields)+1 {
		return nil, false
	}
	groups := make(map[string]string, len(parts))
	for i, f := range d.Fields {
		groups[f.Name] = parts[i]
	}
	groups[PathGroup] = parts[len(parts)-1]
	return groups, true
}

// UpperBound returns an exclusive upper bound for keys starting with prefix.
func UpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = MaxByte
	return out
}

func padLeft(s string, width int, fill byte) string {
	for len(s) < width {
		s = string(fill) + s
	}
	return s
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("sortkey: non-integral number %v", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("sortkey: cannot index %T as number", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("sortkey: cannot index %T as boolean", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
		if ts, err := time.Parse("2006-01-02", t); err == nil {
			return ts, nil
		}
		return time.Time{}, fmt.Errorf("sortkey: cannot parse datetime %q", t)
	case float64:
		return time.UnixMilli(int64(t)), nil
	default:
		return time.Time{}, fmt.Errorf("sortkey: cannot index %T as datetime", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}
