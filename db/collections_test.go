package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionResolver_Defaults(t *testing.T) {
	r, err := LoadCollectionResolver("")
	require.NoError(t, err)

	got, err := r.Resolve(" Tickets ")
	require.NoError(t, err)
	assert.Equal(t, "support_tickets", got)

	_, err = r.Resolve("widgets")
	assert.EqualError(t, err, `invalid collection: "widgets"`)
}

func TestLoadCollectionResolver_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collections.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collections:\n  products: catalog_products\n  Widgets: widgets_v2\n"), 0o600))

	r, err := LoadCollectionResolver(path)
	require.NoError(t, err)

	tests := map[string]string{
		"products": "catalog_products",
		"widgets":  "widgets_v2",
		"reviews":  "reviews",
	}
	for logical, want := range tests {
		got, err := r.Resolve(logical)
		require.NoError(t, err, logical)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, "products", DefaultCollections["products"])
}

func TestLoadCollectionResolver_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCollectionResolver(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read collections file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("collections: [oops"), 0o600))
	_, err = LoadCollectionResolver(bad)
	assert.ErrorContains(t, err, "failed to parse collections file")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("collections:\n  products: \"\"\n"), 0o600))
	_, err = LoadCollectionResolver(empty)
	assert.ErrorContains(t, err, "empty collection name")
}
