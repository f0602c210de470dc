package stages

import (
	"context"
	"fmt"

	"github.com/chative/sqlagent/internal/agent/model"
	errx "github.com/chative/sqlagent/internal/core/error"
	"github.com/chative/sqlagent/internal/embedding"
	"github.com/chative/sqlagent/internal/vectorstore"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// DataSourceLocator shortlists the tables whose description is closest to the
// normalized query. Candidates at or below the table threshold are dropped;
// ties keep table-name order. A similarity backend failure aborts the turn.
func (p *Stages) DataSourceLocator(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	query := normalizedQuery(s)
	if query == "" {
		return nil, fmt.Errorf("data source locator: normalized query is not set")
	}

	vec, err := embedding.EmbedOne(ctx, p.deps.Embedder, query)
	if err != nil {
		return nil, errx.WrapVector(fmt.Errorf("embed normalized query: %w", err))
	}
	topK := p.deps.Config.TableTopK
	if topK <= 0 {
		topK = 1
	}
	matches, err := p.deps.Index.Search(ctx, vectorstore.CollectionTables, vec, topK)
	if err != nil {
		return nil, errx.WrapVector(fmt.Errorf("search tables: %w", err))
	}

	tables := make([]model.MatchedTable, 0, len(matches))
	for _, m := range matches {
		if m.Similarity <= p.deps.Config.TableThreshold {
			continue
		}
		tables = append(tables, model.MatchedTable{
			TableName:       m.Name,
			Description:     m.Description,
			SimilarityScore: m.Similarity,
		})
	}

	ev := logStage(logx.Info(), s, model.StageDataSourceLocator).Int("candidates", len(matches)).Int("matched", len(tables))
	if len(tables) > 0 {
		ev = ev.Str("top_table", tables[0].TableName).Float64("top_score", tables[0].SimilarityScore)
	}
	ev.Msg("tables located")
	return &model.Delta{Stage: model.StageDataSourceLocator, MatchedTables: tables}, nil
}
