package shelf

import (
	"errors"
	"fmt"

	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/shelf_errors"
	"github.com/drpcorg/shelf/sortkey"
)

// Schema returns the active schema, loading the generated record lazily.
func (db *Database) Schema() (*schema.Schema, error) {
	db.clock.Lock()
	defer db.clock.Unlock()
	if db.sch != nil {
		return db.sch, nil
	}
	raw, err := db.store.Get(RootSublevel, []byte(SchemaConfigPath))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, errors.Join(shelf_errors.ErrSchema, errors.New("no schema record, run a full index first"))
		}
		return nil, errors.Join(shelf_errors.ErrSchema, err)
	}
	sch, err := schema.Parse(raw)
	if err != nil {
		return nil, err
	}
	db.sch = sch
	return sch, nil
}

func (db *Database) setSchema(sch *schema.Schema) {
	db.clock.Lock()
	db.sch = sch
	db.clock.Unlock()
}

// IndexDefinitions projects the schema into the {sortKey -> definition}
// table of one collection. The table is built once per collection and
// memoized until ClearCache.
func (db *Database) IndexDefinitions(collection string) (map[string]*sortkey.Definition, error) {
	if defs, ok := db.defs.Load(collection); ok {
		return defs, nil
	}
	sch, err := db.Schema()
	if err != nil {
		return nil, err
	}
	col, ok := sch.Collection(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shelf_errors.ErrCollectionUnknown, collection)
	}
	defs, err := buildIndexDefinitions(col)
	if err != nil {
		return nil, err
	}
	db.defs.Store(collection, defs)
	return defs, nil
}

func buildIndexDefinitions(col *schema.Collection) (map[string]*sortkey.Definition, error) {
	defs := make(map[string]*sortkey.Definition)

	// the default index sorts by primary key alone
	defs[sortkey.FilepathIndex] = &sortkey.Definition{
		Collection: col.Name,
		Name:       sortkey.FilepathIndex,
	}

	for _, f := range col.IndexableFields() {
		defs[f.Name] = &sortkey.Definition{
			Collection: col.Name,
			Name:       f.Name,
			Fields:     []sortkey.Field{{Name: f.Name, Type: f.Type}},
		}
	}

	for _, idx := range col.Indexes {
		def := &sortkey.Definition{
			Collection: col.Name,
			Name:       idx.Name,
			Fields:     make([]sortkey.Field, 0, len(idx.Fields)),
		}
		for _, inf := range idx.Fields {
			f, ok := col.Field(inf.Name)
			if !ok {
				return nil, fmt.Errorf("%w: index %s/%s names unknown field %s",
					shelf_errors.ErrIndexUnknown, col.Name, idx.Name, inf.Name)
			}
			def.Fields = append(def.Fields, sortkey.Field{
				Name: inf.Name,
				Type: f.Type,
				Pad:  padFor(inf.Pad),
			})
		}
		defs[idx.Name] = def
	}
	return defs, nil
}

func padFor(p *schema.Pad) *sortkey.Pad {
	if p == nil {
		return nil
	}
	return &sortkey.Pad{Width: p.Width, Offset: p.Offset}
}
