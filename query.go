package shelf

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/shelf_errors"
	"github.com/drpcorg/shelf/sortkey"
)

// QueryParams select, order, filter, and paginate one collection.
// First/Last of 0 fall back to the configured page size; -1 lifts the
// limit. Last flips iteration order. After/Before are opaque cursors from
// a prior page.
type QueryParams struct {
	Collection string
	Sort       string
	Filter     []FilterClause
	First      int
	Last       int
	After      string
	Before     string
}

type Edge struct {
	Node   any
	Cursor string
	Path   string
}

type PageInfo struct {
	HasPreviousPage bool
	HasNextPage     bool
	StartCursor     string
	EndCursor       string
}

type Result struct {
	Edges    []Edge
	PageInfo PageInfo
}

// Hydrator loads the node for a result path.
type Hydrator func(path string) (any, error)

// Query plans an index scan for the sort key, streams candidates through
// the residual filter, and pages the survivors. Results come back in the
// byte order of the chosen index, reversed when Last is given.
func (db *Database) Query(ctx context.Context, params QueryParams, hydrate Hydrator) (*Result, error) {
	sortName := params.Sort
	if sortName == "" {
		sortName = DefaultSortKey
	}
	timer := prometheus.NewTimer(QueryDuration.WithLabelValues(params.Collection, sortName))
	defer timer.ObserveDuration()

	defs, err := db.IndexDefinitions(params.Collection)
	if err != nil {
		return nil, err
	}
	sch, err := db.Schema()
	if err != nil {
		return nil, err
	}
	col, _ := sch.Collection(params.Collection)

	def := defs[sortName]
	if def == nil {
		// unknown sort keys degrade to a full scan in primary-key order
		def = defs[DefaultSortKey]
	}

	plan, err := compileFilter(col, def, params.Filter)
	if err != nil {
		return nil, err
	}

	r := kv.Range{Reverse: params.Last != 0}
	if params.After != "" {
		cursor, err := decodeCursor(params.After)
		if err != nil {
			return nil, err
		}
		r.Gt = cursor
	} else if plan.left != nil {
		r.Gte = plan.left
	}
	if params.Before != "" {
		cursor, err := decodeCursor(params.Before)
		if err != nil {
			return nil, err
		}
		r.Lt = cursor
	} else if plan.right != nil {
		r.Lte = sortkey.UpperBound(plan.right)
	}

	limit := db.opts.PageSize
	switch {
	case params.First != 0:
		limit = params.First
	case params.Last != 0:
		limit = params.Last
	}

	it, err := db.store.Iterator(def.Sublevel(), r)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	result := &Result{}
	scanned := 0
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scanned++
		key := append([]byte(nil), it.Key()...)
		groups, ok := def.Decode(key)
		if !ok {
			// a key of a different arity belongs to an older index shape
			continue
		}
		path := groups[sortkey.PathGroup]
		match, err := db.candidateMatches(plan, def, groups, path)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		if limit >= 0 && len(result.Edges) >= limit {
			if r.Reverse {
				result.PageInfo.HasPreviousPage = true
			} else {
				result.PageInfo.HasNextPage = true
			}
			break
		}
		result.Edges = append(result.Edges, Edge{Cursor: encodeCursor(key), Path: path})
	}
	QueryScannedKeys.WithLabelValues(params.Collection, sortName).Add(float64(scanned))

	if err := db.hydrateEdges(result.Edges, params.Collection, hydrate); err != nil {
		return nil, err
	}
	if len(result.Edges) > 0 {
		result.PageInfo.StartCursor = result.Edges[0].Cursor
		result.PageInfo.EndCursor = result.Edges[len(result.Edges)-1].Cursor
	}
	return result, nil
}

// candidateMatches applies the residual. Clauses that only reference
// indexed fields evaluate against the decoded key groups; anything else
// costs one primary-record lookup for the candidate.
func (db *Database) candidateMatches(plan *filterPlan, def *sortkey.Definition, groups map[string]string, path string) (bool, error) {
	if len(plan.residual) == 0 {
		return true, nil
	}
	if plan.indexedOnly {
		return plan.matches(func(field string) (any, bool) {
			f, ok := def.Field(field)
			if !ok {
				return nil, false
			}
			enc, ok := groups[field]
			if !ok || enc == "" {
				return nil, false
			}
			return sortkey.DecodeValue(f.Type, enc, f.Pad), true
		})
	}
	rec, err := db.record(path)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return plan.matches(func(field string) (any, bool) {
		v, ok := rec[field]
		return v, ok && v != nil
	})
}

func (db *Database) hydrateEdges(edges []Edge, collection string, hydrate Hydrator) error {
	if hydrate == nil {
		return nil
	}
	for i := range edges {
		node, err := hydrate(edges[i].Path)
		if err != nil {
			// generated config files surface their own errors unadorned
			if strings.HasPrefix(edges[i].Path, GeneratedFolder) {
				return err
			}
			return &shelf_errors.QueryError{Path: edges[i].Path, Collection: collection, Err: err}
		}
		edges[i].Node = node
	}
	return nil
}

func encodeCursor(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

func decodeCursor(cursor string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("shelf: bad cursor: %w", err)
	}
	return key, nil
}
