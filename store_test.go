package shelf

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/shelf/shelf_errors"
)

func TestPutGetRoundTrip(t *testing.T) {
	db, brd, _ := newTestDB(t)
	ctx := context.Background()

	putPost(t, db, "posts/a.md", map[string]any{
		"title": "Hello", "rank": 2, "body": "# Heading\n",
	})

	// the file landed behind the bridge in frontmatter form
	contents, err := brd.Get("posts/a.md")
	require.NoError(t, err)
	assert.Contains(t, contents, "title: Hello")
	assert.Contains(t, contents, "# Heading")

	doc, err := db.Get(ctx, "posts/a.md")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc["title"])
	assert.Equal(t, "# Heading\n", doc["body"])
	assert.Equal(t, "posts", doc["_collection"])
	assert.Equal(t, "posts", doc["_template"])
	assert.Equal(t, "a.md", doc["_relativePath"])
	assert.Equal(t, "posts/a.md", doc["_id"])
}

func TestGetNotFound(t *testing.T) {
	db, _, _ := newTestDB(t)
	_, err := db.Get(context.Background(), "posts/nope.md")
	assert.ErrorIs(t, err, shelf_errors.ErrNotFound)
}

func TestGetConfigRecordVerbatim(t *testing.T) {
	db, _, _ := newTestDB(t)
	doc, err := db.Get(context.Background(), SchemaConfigPath)
	require.NoError(t, err)
	assert.Contains(t, doc, "collections")
	assert.NotContains(t, doc, "_collection")
}

func TestEveryIndexGetsOneEntry(t *testing.T) {
	db, _, _ := newTestDB(t)

	putPost(t, db, "posts/a.md", map[string]any{
		"title": "A", "category": "news", "rank": 1, "draft": false,
	})

	defs, err := db.IndexDefinitions("posts")
	require.NoError(t, err)
	assert.Contains(t, defs, "__filepath__")
	assert.Contains(t, defs, "rank")
	assert.Contains(t, defs, "category_rank")
	// the body field is rich-text and never indexed
	assert.NotContains(t, defs, "body")

	for name, def := range defs {
		keys := indexEntries(t, db, def.Sublevel())
		assert.Len(t, keys, 1, "index %s", name)
		assert.True(t, strings.HasSuffix(keys[0], "posts/a.md"), "index %s", name)
	}
}

func TestOverwriteReindexes(t *testing.T) {
	db, _, _ := newTestDB(t)

	putPost(t, db, "posts/a.md", map[string]any{"rank": 2})
	putPost(t, db, "posts/a.md", map[string]any{"rank": 9})

	keys := indexEntries(t, db, "posts/rank")
	require.Len(t, keys, 1)
	assert.Equal(t, "0009\x1fposts/a.md", keys[0])
}

func TestDeleteRemovesEverything(t *testing.T) {
	db, brd, _ := newTestDB(t)
	ctx := context.Background()

	putPost(t, db, "posts/a.md", map[string]any{
		"title": "A", "category": "news", "rank": 1,
	})
	putPost(t, db, "posts/b.md", map[string]any{
		"title": "B", "category": "news", "rank": 2,
	})
	require.NoError(t, db.Delete(ctx, "posts/a.md"))

	defs, err := db.IndexDefinitions("posts")
	require.NoError(t, err)
	for name, def := range defs {
		for _, key := range indexEntries(t, db, def.Sublevel()) {
			assert.False(t, strings.HasSuffix(key, "\x1fposts/a.md") || key == "posts/a.md",
				"index %s still holds %q", name, key)
		}
	}
	_, err = db.Get(ctx, "posts/a.md")
	assert.ErrorIs(t, err, shelf_errors.ErrNotFound)
	assert.False(t, brd.Has("posts/a.md"))

	// the sibling survives untouched
	_, err = db.Get(ctx, "posts/b.md")
	assert.NoError(t, err)
}

func TestAddPendingDocumentResolvesCollection(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddPendingDocument(ctx, "authors/jane.json", map[string]any{"name": "Jane"}))
	doc, err := db.Get(ctx, "authors/jane.json")
	require.NoError(t, err)
	assert.Equal(t, "authors", doc["_collection"])
	assert.Equal(t, "Jane", doc["name"])

	err = db.AddPendingDocument(ctx, "unknown/place.txt", map[string]any{})
	var fe *shelf_errors.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestPutUnknownCollection(t *testing.T) {
	db, _, _ := newTestDB(t)
	err := db.Put(context.Background(), "posts/a.md", map[string]any{}, "nope")
	var fe *shelf_errors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "nope", fe.Collection)
}

func TestTemplateAnnotation(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "blocks/h.md", map[string]any{
		"_template": "hero", "headline": "Big",
	}, "blocks"))
	doc, err := db.Get(ctx, "blocks/h.md")
	require.NoError(t, err)
	assert.Equal(t, "hero", doc["_template"])

	// a union document without the discriminator cannot be resolved
	require.NoError(t, db.Put(ctx, "blocks/bad.md", map[string]any{
		"headline": "Nope",
	}, "blocks"))
	_, err = db.Get(ctx, "blocks/bad.md")
	var te *shelf_errors.TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "blocks/bad.md", te.Path)
}

func TestSeparatorValueRejected(t *testing.T) {
	db, _, _ := newTestDB(t)
	err := db.Put(context.Background(), "posts/a.md", map[string]any{
		"title": "bad\x1ftitle",
	}, "posts")
	assert.ErrorIs(t, err, shelf_errors.ErrSeparatorInValue)
}
