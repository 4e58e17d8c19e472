package kv

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorGathers(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Put("~", []byte("a"), []byte("1")))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(store)))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	for _, f := range families {
		assert.True(t, strings.HasPrefix(f.GetName(), "shelf_store_pebble_"), f.GetName())
	}
}
