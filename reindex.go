package shelf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drpcorg/shelf/format"
	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/shelf_errors"
	"github.com/drpcorg/shelf/utils"
)

// batchThreshold caps the pending op buffer of incremental reindex; the
// buffer flushes whenever it reaches this many ops.
const batchThreshold = 25

type opBuffer struct {
	store kv.Store
	ops   []kv.Op
}

func (b *opBuffer) add(ops ...kv.Op) error {
	b.ops = append(b.ops, ops...)
	if len(b.ops) >= batchThreshold {
		return b.flush()
	}
	return nil
}

func (b *opBuffer) flush() error {
	if len(b.ops) == 0 {
		return nil
	}
	if err := b.store.Batch(b.ops); err != nil {
		return err
	}
	BatchFlushCount.Inc()
	b.ops = b.ops[:0]
	return nil
}

// runOp wraps a long-running operation with status events and metrics.
// The callback sees inprogress on entry and complete or failed on the way
// out; a failure always re-propagates after the event. The context is
// tagged with the operation and run id so every log line below carries
// them.
func (db *Database) runOp(ctx context.Context, op, mode string, fn func(ctx context.Context) error) error {
	id := uuid.NewString()
	ctx = utils.WithOp(ctx, op, id)
	db.status(op, id, StatusInProgress, nil)
	ReindexCount.WithLabelValues(mode).Inc()
	timer := prometheus.NewTimer(ReindexDuration.WithLabelValues(mode))
	err := fn(ctx)
	timer.ObserveDuration()
	if err != nil {
		ReindexResults.WithLabelValues(mode, "error").Inc()
		db.log.ErrorCtx(ctx, "operation failed", "error", err)
		db.status(op, id, StatusFailed, err)
		return err
	}
	ReindexResults.WithLabelValues(mode, "success").Inc()
	db.status(op, id, StatusComplete, nil)
	return nil
}

// IndexContent performs a full reindex: wipe the store, write the three
// generated config records, then replay every collection document from
// the bridge. Idempotent by construction.
func (db *Database) IndexContent(ctx context.Context, graphql json.RawMessage, sch *schema.Schema) error {
	return db.runOp(ctx, "indexContent", "full", func(ctx context.Context) error {
		return db.indexContent(ctx, graphql, sch)
	})
}

func (db *Database) indexContent(ctx context.Context, graphql json.RawMessage, sch *schema.Schema) error {
	db.wlock.Lock()
	defer db.wlock.Unlock()

	if err := db.store.Clear(); err != nil {
		return err
	}
	db.ClearCache()
	db.setSchema(sch)

	if err := db.writeConfigRecords(graphql, sch); err != nil {
		return err
	}

	buf := &opBuffer{store: db.store}
	for i := range sch.Collections {
		col := &sch.Collections[i]
		if err := db.indexCollection(ctx, col, buf); err != nil {
			return err
		}
	}
	return buf.flush()
}

func (db *Database) writeConfigRecords(graphql json.RawMessage, sch *schema.Schema) error {
	if graphql == nil {
		graphql = json.RawMessage("{}")
	}
	schemaRaw, err := json.Marshal(sch)
	if err != nil {
		return err
	}
	lookupRaw, err := json.Marshal(buildLookup(sch))
	if err != nil {
		return err
	}
	records := []struct {
		path string
		data []byte
	}{
		{GraphQLConfigPath, graphql},
		{SchemaConfigPath, schemaRaw},
		{LookupConfigPath, lookupRaw},
	}
	for _, rec := range records {
		if err := db.store.Put(RootSublevel, []byte(rec.path), rec.data); err != nil {
			return err
		}
		if db.brd.SupportsBuilding() {
			if err := db.brd.PutConfig(rec.path, string(rec.data)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (db *Database) indexCollection(ctx context.Context, col *schema.Collection, buf *opBuffer) error {
	codec, err := format.ForFormat(col.Format)
	if err != nil {
		return err
	}
	paths, err := db.brd.Glob(col.Path, codec.Extension())
	if err != nil {
		return err
	}
	db.log.InfoCtx(ctx, "indexing collection", "collection", col.Name, "documents", len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := db.indexOneDocument(col, codec, p, buf, false); err != nil {
			ReindexedDocuments.WithLabelValues(col.Name, "error").Inc()
			return err
		}
		ReindexedDocuments.WithLabelValues(col.Name, "indexed").Inc()
	}
	return nil
}

// indexOneDocument reads a file through the bridge, parses it, and queues
// its ops. withStaleDels selects read-before-write for incremental runs;
// a full reindex starts from an empty store and skips the read.
func (db *Database) indexOneDocument(col *schema.Collection, codec format.Codec, path string, buf *opBuffer, withStaleDels bool) error {
	contents, err := db.brd.Get(path)
	if err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	payload, err := codec.Parse(contents)
	if err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	var ops []kv.Op
	if withStaleDels {
		ops, err = db.documentOps(col, path, payload, contents)
	} else {
		ops, err = db.freshDocOps(col, path, payload, contents)
	}
	if err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	db.records.Remove(path)
	return buf.add(ops...)
}

// IndexContentByPaths incrementally reindexes the named documents. Files
// whose content hash has not changed are skipped without a rewrite. Paths
// outside every collection bypass indexing.
func (db *Database) IndexContentByPaths(ctx context.Context, paths []string) error {
	return db.runOp(ctx, "indexContentByPaths", "incremental", func(ctx context.Context) error {
		return db.indexContentByPaths(ctx, paths)
	})
}

func (db *Database) indexContentByPaths(ctx context.Context, paths []string) error {
	db.wlock.Lock()
	defer db.wlock.Unlock()
	sch, err := db.Schema()
	if err != nil {
		return err
	}
	buf := &opBuffer{store: db.store}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p = normalizePath(p)
		col, ok := sch.CollectionForPath(p)
		if !ok {
			continue
		}
		codec, err := format.ForFormat(col.Format)
		if err != nil {
			return err
		}
		skip, err := db.unchanged(p)
		if err != nil {
			return err
		}
		if skip {
			ReindexedDocuments.WithLabelValues(col.Name, "skipped").Inc()
			continue
		}
		if err := db.indexOneDocument(col, codec, p, buf, true); err != nil {
			ReindexedDocuments.WithLabelValues(col.Name, "error").Inc()
			return err
		}
		ReindexedDocuments.WithLabelValues(col.Name, "indexed").Inc()
	}
	return buf.flush()
}

// unchanged compares the stored content hash against the current file.
func (db *Database) unchanged(path string) (bool, error) {
	stored, err := db.store.Get(HashSublevel, []byte(path))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	contents, err := db.brd.Get(path)
	if err != nil {
		return false, err
	}
	return bytes.Equal(stored, contentHash(contents)), nil
}

// DeleteContentByPaths removes the named documents from the store. The
// backing files are assumed already gone; the bridge is not touched.
func (db *Database) DeleteContentByPaths(ctx context.Context, paths []string) error {
	return db.runOp(ctx, "deleteContentByPaths", "delete", func(ctx context.Context) error {
		return db.deleteContentByPaths(ctx, paths)
	})
}

func (db *Database) deleteContentByPaths(ctx context.Context, paths []string) error {
	db.wlock.Lock()
	defer db.wlock.Unlock()
	sch, err := db.Schema()
	if err != nil {
		return err
	}
	buf := &opBuffer{store: db.store}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p = normalizePath(p)
		var ops []kv.Op
		if col, ok := sch.CollectionForPath(p); ok {
			ops, err = db.appendStaleDels(ops, col.Name, p)
			if err != nil {
				return &shelf_errors.FetchError{Path: p, Collection: col.Name, Err: err}
			}
		}
		ops = append(ops, kv.Op{Sublevel: RootSublevel, Del: true, Key: []byte(p)})
		ops = append(ops, kv.Op{Sublevel: HashSublevel, Del: true, Key: []byte(p)})
		db.records.Remove(p)
		if err := buf.add(ops...); err != nil {
			return err
		}
	}
	return buf.flush()
}

// buildLookup derives the lookup config record: per-collection routing
// info for the resolver layer.
func buildLookup(sch *schema.Schema) map[string]any {
	lookup := make(map[string]any, len(sch.Collections))
	for _, col := range sch.Collections {
		templates := make([]string, 0, len(col.Templates))
		for _, t := range col.Templates {
			templates = append(templates, t.Name())
		}
		lookup[col.Name] = map[string]any{
			"name":      col.Name,
			"path":      col.Path,
			"format":    col.Format,
			"templates": templates,
		}
	}
	return lookup
}
