package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/chative/sqlagent/internal/vectorstore"
	logx "github.com/chative/sqlagent/pkg/logger"
)

const defaultBatchSize = 64

// Indexer embeds catalog entries and upserts them into the similarity index.
type Indexer struct {
	Embedder  embedding.Embedder
	Store     vectorstore.Store
	BatchSize int
}

// Stats counts the documents written per collection.
type Stats struct {
	Terms  int
	Tables int
}

// Entry is a document together with the text its vector is computed from.
type Entry struct {
	Text string
	Doc  vectorstore.Document
}

// Index writes every term surface form and every table description. Document
// ids are derived from names, so indexing the same catalog twice overwrites
// rather than duplicates. Ids are unique per collection only.
func (ix *Indexer) Index(ctx context.Context, c *Catalog) (Stats, error) {
	var stats Stats
	terms := TermEntries(c)
	if err := ix.upsert(ctx, vectorstore.CollectionTerms, terms); err != nil {
		return stats, err
	}
	stats.Terms = len(terms)

	tables := TableEntries(c)
	if err := ix.upsert(ctx, vectorstore.CollectionTables, tables); err != nil {
		return stats, err
	}
	stats.Tables = len(tables)

	logx.Info().Int("terms", stats.Terms).Int("tables", stats.Tables).Msg("catalog indexed")
	return stats, nil
}

func (ix *Indexer) upsert(ctx context.Context, collection string, entries []Entry) error {
	size := ix.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for start := 0; start < len(entries); start += size {
		batch := entries[start:min(start+size, len(entries))]
		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Text
		}
		vecs, err := ix.Embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %s batch at %d: %w", collection, start, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed %s batch at %d: got %d vectors for %d texts", collection, start, len(vecs), len(batch))
		}
		docs := make([]vectorstore.Document, len(batch))
		for i, e := range batch {
			docs[i] = e.Doc
			docs[i].Vector = vecs[i]
		}
		if err := ix.Store.Upsert(ctx, collection, docs); err != nil {
			return fmt.Errorf("upsert %s: %w", collection, err)
		}
		logx.Debug().Str("collection", collection).Int("offset", start).Int("docs", len(docs)).Msg("batch indexed")
	}
	return nil
}

// TermEntries expands every term into one entry for its name and one per
// alias. All of them resolve to the canonical name.
func TermEntries(c *Catalog) []Entry {
	var entries []Entry
	for _, t := range c.Terms {
		id := slug(t.Name)
		entries = append(entries, Entry{
			Text: t.Name,
			Doc:  vectorstore.Document{ID: id, Name: t.Name, Description: t.Description},
		})
		for _, a := range t.Aliases {
			entries = append(entries, Entry{
				Text: a,
				Doc:  vectorstore.Document{ID: id + ":alias:" + slug(a), Name: t.Name, Description: t.Description},
			})
		}
	}
	return entries
}

// TableEntries returns one entry per table, embedded by its description.
func TableEntries(c *Catalog) []Entry {
	entries := make([]Entry, 0, len(c.Tables))
	for _, t := range c.Tables {
		entries = append(entries, Entry{
			Text: t.Description,
			Doc:  vectorstore.Document{ID: t.Name, Name: t.Name, Description: t.Description},
		})
	}
	return entries
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}
