package shelf

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash"

	"github.com/drpcorg/shelf/format"
	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/shelf_errors"
)

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "/")
}

// Get fetches the primary record for a path and reshapes it for the
// caller: the reserved body key moves back under its schema name and the
// payload is annotated with _collection, _template, _relativePath and _id.
// System files outside every collection come back verbatim.
func (db *Database) Get(ctx context.Context, path string) (map[string]any, error) {
	path = normalizePath(path)
	raw, err := db.store.Get(RootSublevel, []byte(path))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", shelf_errors.ErrNotFound, path)
		}
		return nil, err
	}
	payload := make(map[string]any)
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	sch, err := db.Schema()
	if err != nil {
		return nil, err
	}
	col, ok := sch.CollectionForPath(path)
	if !ok {
		return payload, nil
	}
	if col.MarkdownLike() {
		if body, has := payload[format.BodyKey]; has {
			if bf, hasBody := col.BodyField(); hasBody {
				delete(payload, format.BodyKey)
				payload[bf.Name] = body
			}
		}
	}
	tname, err := templateName(col, path, payload)
	if err != nil {
		return nil, err
	}
	payload["_collection"] = col.Name
	payload[TemplateKey] = tname
	payload["_relativePath"] = relativePath(col, path)
	payload["_id"] = path
	return payload, nil
}

// templateName resolves the union-template discriminator of a document.
// Collections without templates act as a single implicit template named
// after the collection.
func templateName(col *schema.Collection, path string, payload map[string]any) (string, error) {
	if len(col.Templates) == 0 {
		return col.Name, nil
	}
	tname, ok := payload[TemplateKey].(string)
	if !ok || tname == "" {
		return "", &shelf_errors.TemplateError{Path: path}
	}
	t, ok := col.Template(tname)
	if !ok {
		return "", &shelf_errors.TemplateError{Path: path}
	}
	return t.Name(), nil
}

func relativePath(col *schema.Collection, path string) string {
	root := strings.Trim(col.Path, "/")
	if root == "" {
		return path
	}
	return strings.TrimPrefix(path, root+"/")
}

// Put writes a document into the named collection: file first through the
// bridge, then one atomic batch covering stale index deletes, fresh index
// entries, the primary record, and the content hash.
func (db *Database) Put(ctx context.Context, path string, data map[string]any, collection string) error {
	db.wlock.Lock()
	defer db.wlock.Unlock()
	path = normalizePath(path)
	sch, err := db.Schema()
	if err != nil {
		return err
	}
	col, ok := sch.Collection(collection)
	if !ok {
		return &shelf_errors.FetchError{Path: path, Collection: collection,
			Err: fmt.Errorf("%w: %s", shelf_errors.ErrCollectionUnknown, collection)}
	}
	return db.putDocument(ctx, col, path, data)
}

// AddPendingDocument is Put with the collection resolved from the path.
func (db *Database) AddPendingDocument(ctx context.Context, path string, data map[string]any) error {
	db.wlock.Lock()
	defer db.wlock.Unlock()
	path = normalizePath(path)
	sch, err := db.Schema()
	if err != nil {
		return err
	}
	col, ok := sch.CollectionForPath(path)
	if !ok {
		return &shelf_errors.FetchError{Path: path, Collection: "",
			Err: fmt.Errorf("%w: no collection matches %s", shelf_errors.ErrCollectionUnknown, path)}
	}
	return db.putDocument(ctx, col, path, data)
}

func (db *Database) putDocument(ctx context.Context, col *schema.Collection, path string, data map[string]any) error {
	codec, err := format.ForFormat(col.Format)
	if err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	payload := storedPayload(col, data)
	contents, err := codec.Stringify(payload)
	if err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	if err := db.brd.Put(path, contents); err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	ops, err := db.documentOps(col, path, payload, contents)
	if err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	if err := db.store.Batch(ops); err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: col.Name, Err: err}
	}
	db.records.Remove(path)
	db.log.DebugCtx(ctx, "put document", "path", path, "collection", col.Name)
	return nil
}

// storedPayload shapes caller data into the primary-record form: for
// markdown-like formats the body field travels under the reserved key.
func storedPayload(col *schema.Collection, data map[string]any) map[string]any {
	payload := make(map[string]any, len(data))
	for k, v := range data {
		payload[k] = v
	}
	if !col.MarkdownLike() {
		return payload
	}
	bf, ok := col.BodyField()
	if !ok {
		return payload
	}
	if body, has := payload[bf.Name]; has {
		delete(payload, bf.Name)
		payload[format.BodyKey] = body
	}
	return payload
}

// documentOps derives the atomic batch for one document write: deletes
// for the stale index entries of any existing record, puts for the fresh
// ones, the primary record itself, and the content hash.
func (db *Database) documentOps(col *schema.Collection, path string, payload map[string]any, contents string) ([]kv.Op, error) {
	ops, err := db.appendStaleDels(nil, col.Name, path)
	if err != nil {
		return nil, err
	}
	fresh, err := db.freshDocOps(col, path, payload, contents)
	if err != nil {
		return nil, err
	}
	return append(ops, fresh...), nil
}

// freshDocOps is the put side alone: index entries, primary record, hash.
func (db *Database) freshDocOps(col *schema.Collection, path string, payload map[string]any, contents string) ([]kv.Op, error) {
	defs, err := db.IndexDefinitions(col.Name)
	if err != nil {
		return nil, err
	}
	var ops []kv.Op
	for _, def := range defs {
		key, err := def.Encode(payload, path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, kv.Op{Sublevel: def.Sublevel(), Key: key, Value: []byte{}})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ops = append(ops, kv.Op{Sublevel: RootSublevel, Key: []byte(path), Value: raw})
	ops = append(ops, kv.Op{Sublevel: HashSublevel, Key: []byte(path), Value: contentHash(contents)})
	return ops, nil
}

// appendStaleDels adds del-ops for every index entry the current primary
// record contributes; read-before-write keeps overwrites from stranding
// entries at old key positions.
func (db *Database) appendStaleDels(ops []kv.Op, collection, path string) ([]kv.Op, error) {
	raw, err := db.store.Get(RootSublevel, []byte(path))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ops, nil
		}
		return nil, err
	}
	old := make(map[string]any)
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, err
	}
	defs, err := db.IndexDefinitions(collection)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		key, err := def.Encode(old, path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, kv.Op{Sublevel: def.Sublevel(), Del: true, Key: key})
	}
	return ops, nil
}

// Delete removes the primary record and every index entry in one batch,
// then removes the backing file.
func (db *Database) Delete(ctx context.Context, path string) error {
	db.wlock.Lock()
	defer db.wlock.Unlock()
	path = normalizePath(path)
	sch, err := db.Schema()
	if err != nil {
		return err
	}
	col, ok := sch.CollectionForPath(path)
	colName := ""
	if ok {
		colName = col.Name
	}
	var ops []kv.Op
	if ok {
		ops, err = db.appendStaleDels(ops, colName, path)
		if err != nil {
			return &shelf_errors.FetchError{Path: path, Collection: colName, Err: err}
		}
	}
	ops = append(ops, kv.Op{Sublevel: RootSublevel, Del: true, Key: []byte(path)})
	ops = append(ops, kv.Op{Sublevel: HashSublevel, Del: true, Key: []byte(path)})
	if err := db.store.Batch(ops); err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: colName, Err: err}
	}
	db.records.Remove(path)
	if err := db.brd.Delete(path); err != nil {
		return &shelf_errors.FetchError{Path: path, Collection: colName, Err: err}
	}
	db.log.DebugCtx(ctx, "deleted document", "path", path, "collection", colName)
	return nil
}

func contentHash(contents string) []byte {
	return binary.BigEndian.AppendUint64(nil, xxhash.Sum64String(contents))
}

// record fetches and caches a primary record; the query path's residual
// filter uses it for clauses on fields outside the scanned index.
func (db *Database) record(path string) (map[string]any, error) {
	if rec, ok := db.records.Get(path); ok {
		return rec, nil
	}
	raw, err := db.store.Get(RootSublevel, []byte(path))
	if err != nil {
		return nil, err
	}
	rec := make(map[string]any)
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	db.records.Add(path, rec)
	return rec, nil
}
