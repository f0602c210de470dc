package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative/sqlagent/internal/embedding"
	"github.com/chative/sqlagent/internal/vectorstore"
)

const sampleYAML = `
terms:
  - name: Acme Corporation
    description: customer name as stored in orders.customer
    aliases: [" Acme ", "ACME Corp", "acme corporation"]
  - name: Gross Merchandise Value
    description: sum of order amounts
tables:
  - name: orders
    description: customer orders with amount and order date
  - name: invoices
    description: billing invoices issued to customers
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, c.Terms, 2)
	assert.Equal(t, "Acme Corporation", c.Terms[0].Name)
	assert.Equal(t, []string{"Acme", "ACME Corp"}, c.Terms[0].Aliases, "trimmed and without the canonical name")
	assert.Empty(t, c.Terms[1].Aliases)
	require.Len(t, c.Tables, 2)
	assert.Equal(t, "invoices", c.Tables[1].Name)
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "empty", yaml: "terms: []\n", want: "catalog is empty"},
		{name: "term without name", yaml: "terms:\n  - description: x\n", want: "terms[0]: name is required"},
		{name: "duplicate term", yaml: "terms:\n  - name: GMV\n  - name: gmv\n", want: `duplicate term "gmv"`},
		{name: "table without description", yaml: "tables:\n  - name: orders\n", want: "orders has no description"},
		{name: "duplicate table", yaml: "tables:\n  - {name: a, description: x}\n  - {name: a, description: y}\n", want: `duplicate table "a"`},
		{name: "not yaml", yaml: "terms: [", want: "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Tables, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTermEntriesExpandAliases(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	entries := TermEntries(c)
	require.Len(t, entries, 4)
	assert.Equal(t, "Acme", entries[1].Text)
	assert.Equal(t, "acme_corporation:alias:acme", entries[1].Doc.ID)
	for _, e := range entries[:3] {
		assert.Equal(t, "Acme Corporation", e.Doc.Name)
	}
	assert.Equal(t, "gross_merchandise_value", entries[3].Doc.ID)
}

func TestIndexResolvesAliasesToCanonicalName(t *testing.T) {
	ctx := context.Background()
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	embedder := embedding.NewHashEmbedder(256)
	store := vectorstore.NewMemory()
	ix := &Indexer{Embedder: embedder, Store: store, BatchSize: 2}

	stats, err := ix.Index(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, Stats{Terms: 4, Tables: 2}, stats)
	assert.Equal(t, 4, store.Len(vectorstore.CollectionTerms))
	assert.Equal(t, 2, store.Len(vectorstore.CollectionTables))

	vec, err := embedding.EmbedOne(ctx, embedder, "acme corp")
	require.NoError(t, err)
	matches, err := store.Search(ctx, vectorstore.CollectionTerms, vec, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Acme Corporation", matches[0].Name)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)

	vec, err = embedding.EmbedOne(ctx, embedder, "billing invoices issued to customers")
	require.NoError(t, err)
	matches, err = store.Search(ctx, vectorstore.CollectionTables, vec, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "invoices", matches[0].Name)

	// reindexing overwrites
	_, err = ix.Index(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 4, store.Len(vectorstore.CollectionTerms))
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedStrings(context.Context, []string, ...einoembedding.Option) ([][]float64, error) {
	return nil, errors.New("quota exceeded")
}

func TestIndexStopsOnEmbeddingFailure(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	store := vectorstore.NewMemory()

	_, err = (&Indexer{Embedder: failingEmbedder{}, Store: store}).Index(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Zero(t, store.Len(vectorstore.CollectionTerms))
}
