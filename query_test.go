package shelf

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drpcorg/shelf/shelf_errors"
)

func edgePaths(res *Result) []string {
	paths := make([]string, 0, len(res.Edges))
	for _, e := range res.Edges {
		paths = append(paths, e.Path)
	}
	return paths
}

func TestQueryNumericSort(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()

	putPost(t, db, "posts/a.md", map[string]any{"rank": 2})
	putPost(t, db, "posts/b.md", map[string]any{"rank": 10})
	putPost(t, db, "posts/c.md", map[string]any{"rank": 1})

	res, err := db.Query(ctx, QueryParams{Collection: "posts", Sort: "rank"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/c.md", "posts/a.md", "posts/b.md"}, edgePaths(res))

	res, err = db.Query(ctx, QueryParams{
		Collection: "posts", Sort: "rank",
		Filter: []FilterClause{{Field: "rank", Op: OpGte, Value: 2}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/a.md", "posts/b.md"}, edgePaths(res))
}

func TestQueryDefaultSortIsPathOrder(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()

	putPost(t, db, "posts/b.md", map[string]any{"rank": 1})
	putPost(t, db, "posts/a.md", map[string]any{"rank": 2})

	res, err := db.Query(ctx, QueryParams{Collection: "posts"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/a.md", "posts/b.md"}, edgePaths(res))
}

func TestQueryUnknownCollection(t *testing.T) {
	db, _, _ := newTestDB(t)
	_, err := db.Query(context.Background(), QueryParams{Collection: "nope"}, nil)
	assert.ErrorIs(t, err, shelf_errors.ErrCollectionUnknown)
}

func TestQueryUnknownSortFallsBackToFullScan(t *testing.T) {
	db, _, _ := newTestDB(t)
	putPost(t, db, "posts/a.md", map[string]any{"rank": 1})
	res, err := db.Query(context.Background(), QueryParams{Collection: "posts", Sort: "no_such_index"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/a.md"}, edgePaths(res))
}

func seedRanked(t *testing.T, db *Database, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		putPost(t, db, fmt.Sprintf("posts/p%02d.md", i), map[string]any{"rank": i})
	}
}

func TestForwardPagination(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()
	seedRanked(t, db, 10)

	page1, err := db.Query(ctx, QueryParams{Collection: "posts", Sort: "rank", First: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/p01.md", "posts/p02.md", "posts/p03.md"}, edgePaths(page1))
	assert.True(t, page1.PageInfo.HasNextPage)
	assert.False(t, page1.PageInfo.HasPreviousPage)
	assert.Equal(t, page1.Edges[0].Cursor, page1.PageInfo.StartCursor)
	assert.Equal(t, page1.Edges[2].Cursor, page1.PageInfo.EndCursor)

	page2, err := db.Query(ctx, QueryParams{
		Collection: "posts", Sort: "rank", First: 3, After: page1.PageInfo.EndCursor,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/p04.md", "posts/p05.md", "posts/p06.md"}, edgePaths(page2))
	assert.True(t, page2.PageInfo.HasNextPage)
}

func TestReversePagination(t *testing.T) {
	db, _, _ := newTestDB(t)
	seedRanked(t, db, 10)

	res, err := db.Query(context.Background(), QueryParams{
		Collection: "posts", Sort: "rank", Last: 2,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/p10.md", "posts/p09.md"}, edgePaths(res))
	assert.True(t, res.PageInfo.HasPreviousPage)
	assert.False(t, res.PageInfo.HasNextPage)
}

func TestCursorRoundTripNoGapNoOverlap(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()
	seedRanked(t, db, 7)

	var all []string
	cursor := ""
	for {
		params := QueryParams{Collection: "posts", Sort: "rank", First: 2, After: cursor}
		res, err := db.Query(ctx, params, nil)
		require.NoError(t, err)
		all = append(all, edgePaths(res)...)
		if !res.PageInfo.HasNextPage {
			break
		}
		cursor = res.PageInfo.EndCursor
	}
	assert.Equal(t, []string{
		"posts/p01.md", "posts/p02.md", "posts/p03.md", "posts/p04.md",
		"posts/p05.md", "posts/p06.md", "posts/p07.md",
	}, all)
}

func TestUnlimitedQuery(t *testing.T) {
	db, _, _ := newTestDB(t)
	seedRanked(t, db, 60)

	// the default page size caps at 50
	res, err := db.Query(context.Background(), QueryParams{Collection: "posts", Sort: "rank"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Edges, 50)
	assert.True(t, res.PageInfo.HasNextPage)

	res, err = db.Query(context.Background(), QueryParams{Collection: "posts", Sort: "rank", First: -1}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Edges, 60)
	assert.False(t, res.PageInfo.HasNextPage)
}

func TestCompositePrefixAndResidual(t *testing.T) {
	db, _, cs := newTestDB(t)
	ctx := context.Background()

	putPost(t, db, "posts/n1.md", map[string]any{"category": "news", "rank": 1, "title": "Alpha"})
	putPost(t, db, "posts/n2.md", map[string]any{"category": "news", "rank": 2, "title": "Beta"})
	putPost(t, db, "posts/n3.md", map[string]any{"category": "news", "rank": 3, "title": "Arc"})
	putPost(t, db, "posts/s1.md", map[string]any{"category": "sport", "rank": 1, "title": "Ace"})

	before := cs.getCount(RootSublevel)
	res, err := db.Query(ctx, QueryParams{
		Collection: "posts", Sort: "category_rank",
		Filter: []FilterClause{
			{Field: "category", Op: OpEq, Value: "news"},
			{Field: "title", Op: OpStartsWith, Value: "A"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/n1.md", "posts/n3.md"}, edgePaths(res))

	// title is outside the scanned index: one primary lookup per candidate
	// inside the category="news" prefix, and none for the sport document
	assert.Equal(t, 3, cs.getCount(RootSublevel)-before)
}

func TestIndexedResidualNeedsNoLookup(t *testing.T) {
	db, _, cs := newTestDB(t)

	putPost(t, db, "posts/a.md", map[string]any{"rank": 2})
	putPost(t, db, "posts/b.md", map[string]any{"rank": 10})

	before := cs.getCount(RootSublevel)
	res, err := db.Query(context.Background(), QueryParams{
		Collection: "posts", Sort: "rank",
		Filter: []FilterClause{{Field: "rank", Op: OpGt, Value: 2}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/b.md"}, edgePaths(res))
	assert.Equal(t, 0, cs.getCount(RootSublevel)-before)
}

func TestBetweenFilter(t *testing.T) {
	db, _, _ := newTestDB(t)
	seedRanked(t, db, 10)

	res, err := db.Query(context.Background(), QueryParams{
		Collection: "posts", Sort: "rank",
		Filter: []FilterClause{{Field: "rank", Op: OpBetween, Value: 3, To: 5}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts/p03.md", "posts/p04.md", "posts/p05.md"}, edgePaths(res))
}

func TestContradictoryClausesYieldNothing(t *testing.T) {
	db, _, _ := newTestDB(t)
	seedRanked(t, db, 5)

	res, err := db.Query(context.Background(), QueryParams{
		Collection: "posts", Sort: "rank",
		Filter: []FilterClause{
			{Field: "rank", Op: OpGte, Value: 4},
			{Field: "rank", Op: OpLte, Value: 2},
		},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	assert.Equal(t, "", res.PageInfo.StartCursor)
	assert.Equal(t, "", res.PageInfo.EndCursor)
}

func TestHydratorWrapsErrors(t *testing.T) {
	db, _, _ := newTestDB(t)
	putPost(t, db, "posts/a.md", map[string]any{"rank": 1})

	_, err := db.Query(context.Background(), QueryParams{Collection: "posts"},
		func(path string) (any, error) {
			return nil, fmt.Errorf("boom")
		})
	var qe *shelf_errors.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "posts/a.md", qe.Path)
	assert.Equal(t, "posts", qe.Collection)
}

func TestHydratorLoadsNodes(t *testing.T) {
	db, _, _ := newTestDB(t)
	ctx := context.Background()
	putPost(t, db, "posts/a.md", map[string]any{"rank": 1, "title": "A"})

	res, err := db.Query(ctx, QueryParams{Collection: "posts"}, func(path string) (any, error) {
		return db.Get(ctx, path)
	})
	require.NoError(t, err)
	require.Len(t, res.Edges, 1)
	node := res.Edges[0].Node.(map[string]any)
	assert.Equal(t, "A", node["title"])
}

func TestGeneratedConfigErrorsUnwrapped(t *testing.T) {
	db, _, _ := newTestDB(t)
	boom := fmt.Errorf("boom")
	err := db.hydrateEdges([]Edge{{Path: GraphQLConfigPath}}, "posts", func(string) (any, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)
}
