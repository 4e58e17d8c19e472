package shelf

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drpcorg/shelf/bridge"
	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/utils"
)

func testSchema() *schema.Schema {
	return &schema.Schema{Collections: []schema.Collection{
		{
			Name: "posts", Path: "posts", Format: "md",
			Fields: []schema.Field{
				{Name: "title", Type: schema.TypeString},
				{Name: "category", Type: schema.TypeString},
				{Name: "rank", Type: schema.TypeNumber},
				{Name: "published", Type: schema.TypeDatetime},
				{Name: "draft", Type: schema.TypeBoolean},
				{Name: "author", Type: schema.TypeReference},
				{Name: "body", Type: schema.TypeRichText, IsBody: true},
			},
			Indexes: []schema.Index{
				{Name: "category_rank", Fields: []schema.IndexField{
					{Name: "category"}, {Name: "rank"},
				}},
			},
		},
		{
			Name: "authors", Path: "authors", Format: "json",
			Fields: []schema.Field{
				{Name: "name", Type: schema.TypeString},
			},
		},
		{
			Name: "blocks", Path: "blocks", Format: "md",
			Templates: []schema.Template{
				{Namespace: []string{"blocks", "hero"}, Fields: []schema.Field{
					{Name: "headline", Type: schema.TypeString},
				}},
				{Namespace: []string{"blocks", "cta"}, Fields: []schema.Field{
					{Name: "label", Type: schema.TypeString},
				}},
			},
		},
	}}
}

// countingStore wraps a real store and tallies point reads and batches;
// the query tests assert the exact lookup cost of residual filtering.
type countingStore struct {
	kv.Store
	mu      sync.Mutex
	gets    map[string]int
	batches int
}

func (c *countingStore) Get(sublevel string, key []byte) ([]byte, error) {
	c.mu.Lock()
	if c.gets == nil {
		c.gets = make(map[string]int)
	}
	c.gets[sublevel]++
	c.mu.Unlock()
	return c.Store.Get(sublevel, key)
}

func (c *countingStore) Batch(ops []kv.Op) error {
	c.mu.Lock()
	c.batches++
	c.mu.Unlock()
	return c.Store.Batch(ops)
}

func (c *countingStore) getCount(sublevel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[sublevel]
}

func (c *countingStore) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

func newTestDB(t *testing.T) (*Database, *bridge.Memory, *countingStore) {
	t.Helper()
	pb, err := kv.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pb.Close() })
	cs := &countingStore{Store: pb}
	brd := bridge.NewMemory()
	db := New(cs, brd, Options{Logger: utils.NewDefaultLogger(slog.LevelError)})
	require.NoError(t, db.IndexContent(context.Background(), nil, testSchema()))
	return db, brd, cs
}

func putPost(t *testing.T, db *Database, path string, data map[string]any) {
	t.Helper()
	require.NoError(t, db.Put(context.Background(), path, data, "posts"))
}

// indexEntries lists the raw keys of one index sublevel.
func indexEntries(t *testing.T, db *Database, sublevel string) []string {
	t.Helper()
	it, err := db.Store().Iterator(sublevel, kv.Range{})
	require.NoError(t, err)
	defer it.Close()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	return keys
}
