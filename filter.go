package shelf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/shelf_errors"
	"github.com/drpcorg/shelf/sortkey"
)

type FilterOp string

const (
	OpEq         FilterOp = "eq"
	OpStartsWith FilterOp = "startsWith"
	OpGt         FilterOp = "gt"
	OpGte        FilterOp = "gte"
	OpLt         FilterOp = "lt"
	OpLte        FilterOp = "lte"
	OpBetween    FilterOp = "between"
)

// FilterClause is one conjunct of a filter chain. To carries the upper
// operand of between; it is ignored for every other operator.
type FilterClause struct {
	Field string
	Op    FilterOp
	Value any
	To    any
}

type compiledClause struct {
	clause FilterClause
	ftype  schema.FieldType
}

// filterPlan is a compiled filter chain: the byte prefixes bounding the
// index scan and the residual predicate re-checked per candidate. The
// prefixes are a conservative superset; the residual enforces every
// clause.
type filterPlan struct {
	left        []byte
	right       []byte
	residual    []compiledClause
	indexedOnly bool
}

// compileFilter plans a chain against one index definition. Leading
// equality clauses extend both scan prefixes; the first range clause
// contributes its bounds and stops prefix extension.
func compileFilter(col *schema.Collection, def *sortkey.Definition, chain []FilterClause) (*filterPlan, error) {
	plan := &filterPlan{indexedOnly: true}
	for _, c := range chain {
		f, ok := col.Field(c.Field)
		if !ok {
			return nil, fmt.Errorf("shelf: filter names unknown field %s in %s", c.Field, col.Name)
		}
		switch c.Op {
		case OpEq, OpStartsWith, OpGt, OpGte, OpLt, OpLte, OpBetween:
		default:
			return nil, fmt.Errorf("%w: %s", shelf_errors.ErrBadFilterOp, c.Op)
		}
		if _, indexed := def.Field(c.Field); !indexed {
			plan.indexedOnly = false
		}
		plan.residual = append(plan.residual, compiledClause{clause: c, ftype: f.Type})
	}

	var left, right bytes.Buffer
	leftOpen, rightOpen := true, true
slots:
	for _, slot := range def.Fields {
		var lower, upper string
		haveLower, haveUpper, eqOnly := false, false, true
		consumed := false
		for _, cc := range plan.residual {
			if cc.clause.Field != slot.Name {
				continue
			}
			lo, hi, eq, err := clauseBounds(cc, slot.Pad)
			if err != nil {
				return nil, err
			}
			consumed = true
			if !eq {
				eqOnly = false
			}
			// contradictory constraints intersect; the residual still
			// enforces both sides
			if lo != "" && (!haveLower || lo > lower) {
				lower, haveLower = lo, true
			}
			if hi != "" && (!haveUpper || hi < upper) {
				upper, haveUpper = hi, true
			}
		}
		if !consumed {
			break
		}
		if eqOnly {
			if leftOpen {
				left.WriteString(lower)
				left.WriteByte(sortkey.Separator)
			}
			if rightOpen {
				right.WriteString(upper)
				right.WriteByte(sortkey.Separator)
			}
			continue
		}
		// a range clause narrows its own slot and ends the prefix
		if haveLower && leftOpen {
			left.WriteString(lower)
		} else {
			leftOpen = false
		}
		if haveUpper && rightOpen {
			right.WriteString(upper)
		} else {
			rightOpen = false
		}
		break slots
	}
	if left.Len() > 0 {
		plan.left = left.Bytes()
	}
	if right.Len() > 0 {
		plan.right = right.Bytes()
	}
	return plan, nil
}

// clauseBounds encodes the lower/upper key-space bounds one clause puts on
// its slot. eq reports whether the slot stays pinned for further prefix
// extension.
func clauseBounds(cc compiledClause, pad *sortkey.Pad) (lo, hi string, eq bool, err error) {
	enc := func(v any) (string, error) {
		return sortkey.EncodeValue(cc.ftype, v, pad)
	}
	switch cc.clause.Op {
	case OpEq:
		v, err := enc(cc.clause.Value)
		if err != nil {
			return "", "", false, err
		}
		return v, v, true, nil
	case OpStartsWith:
		v, err := enc(cc.clause.Value)
		if err != nil {
			return "", "", false, err
		}
		return v, v, false, nil
	case OpGt, OpGte:
		v, err := enc(cc.clause.Value)
		if err != nil {
			return "", "", false, err
		}
		return v, "", false, nil
	case OpLt, OpLte:
		v, err := enc(cc.clause.Value)
		if err != nil {
			return "", "", false, err
		}
		return "", v, false, nil
	case OpBetween:
		v, err := enc(cc.clause.Value)
		if err != nil {
			return "", "", false, err
		}
		v2, err := enc(cc.clause.To)
		if err != nil {
			return "", "", false, err
		}
		return v, v2, false, nil
	}
	return "", "", false, fmt.Errorf("%w: %s", shelf_errors.ErrBadFilterOp, cc.clause.Op)
}

// matches runs the residual over one candidate. subject resolves a field
// to its native value; a missing field fails the clause.
func (p *filterPlan) matches(subject func(field string) (any, bool)) (bool, error) {
	for _, cc := range p.residual {
		v, ok := subject(cc.clause.Field)
		if !ok {
			return false, nil
		}
		hit, err := evalClause(cc, v)
		if err != nil {
			return false, err
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(cc compiledClause, candidate any) (bool, error) {
	if cc.clause.Op == OpStartsWith {
		c, okc := candidate.(string)
		v, okv := cc.clause.Value.(string)
		if !okc || !okv {
			return false, fmt.Errorf("shelf: startsWith needs string operands on %s", cc.clause.Field)
		}
		return strings.HasPrefix(c, v), nil
	}
	cmp, err := compareTyped(cc.ftype, candidate, cc.clause.Value)
	if err != nil {
		return false, err
	}
	switch cc.clause.Op {
	case OpEq:
		return cmp == 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	case OpBetween:
		if cmp < 0 {
			return false, nil
		}
		hi, err := compareTyped(cc.ftype, candidate, cc.clause.To)
		if err != nil {
			return false, err
		}
		return hi <= 0, nil
	}
	return false, fmt.Errorf("%w: %s", shelf_errors.ErrBadFilterOp, cc.clause.Op)
}

// compareTyped orders two values under the field's declared type.
func compareTyped(t schema.FieldType, a, b any) (int, error) {
	switch t {
	case schema.TypeNumber:
		x, err := toFloat(a)
		if err != nil {
			return 0, err
		}
		y, err := toFloat(b)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case schema.TypeBoolean:
		x, y := toBoolLoose(a), toBoolLoose(b)
		switch {
		case !x && y:
			return -1, nil
		case x && !y:
			return 1, nil
		}
		return 0, nil
	case schema.TypeDatetime:
		x, err := toTimeLoose(a)
		if err != nil {
			return 0, err
		}
		y, err := toTimeLoose(b)
		if err != nil {
			return 0, err
		}
		switch {
		case x.Before(y):
			return -1, nil
		case x.After(y):
			return 1, nil
		}
		return 0, nil
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("shelf: %T is not a number", v)
	}
}

func toBoolLoose(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	}
	return false
}

func toTimeLoose(v any) (time.Time, error) {
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
		return time.Time{}, fmt.Errorf("shelf: cannot parse datetime %q", t)
	case float64:
		return time.UnixMilli(int64(t)), nil
	default:
		return time.Time{}, fmt.Errorf("shelf: %T is not a datetime", v)
	}
}
