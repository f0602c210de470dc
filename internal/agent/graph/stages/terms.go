package stages

import (
	"context"

	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/embedding"
	"github.com/chative/sqlagent/internal/metrics"
	"github.com/chative/sqlagent/internal/vectorstore"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// DomainTermMapper resolves each keyword to its nearest canonical term. A
// keyword is mapped only when the similarity exceeds the term threshold;
// failures for one keyword never abort the others.
func (p *Stages) DomainTermMapper(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	vectors := p.embedKeywords(ctx, s)

	mappings := make(map[string]model.DomainTerm, len(s.Keywords))
	for i, kw := range s.Keywords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := vectors[i]
		if vec == nil {
			var err error
			vec, err = embedding.EmbedOne(ctx, p.deps.Embedder, kw)
			if err != nil {
				metrics.TermLookups.WithLabelValues("error").Inc()
				logStage(logx.Warn(), s, model.StageDomainTermMapper).Err(err).Str("keyword", kw).Msg("keyword embedding failed")
				continue
			}
		}

		matches, err := p.deps.Index.Search(ctx, vectorstore.CollectionTerms, vec, 1)
		if err != nil {
			metrics.TermLookups.WithLabelValues("error").Inc()
			logStage(logx.Warn(), s, model.StageDomainTermMapper).Err(err).Str("keyword", kw).Msg("term lookup failed")
			continue
		}
		if len(matches) == 0 || matches[0].Similarity <= p.deps.Config.TermThreshold {
			metrics.TermLookups.WithLabelValues("miss").Inc()
			continue
		}
		metrics.TermLookups.WithLabelValues("hit").Inc()
		mappings[kw] = model.DomainTerm{CanonicalName: matches[0].Name, Description: matches[0].Description}
	}

	logStage(logx.Info(), s, model.StageDomainTermMapper).
		Int("keywords", len(s.Keywords)).Int("mapped", len(mappings)).Msg("terms mapped")
	return &model.Delta{Stage: model.StageDomainTermMapper, DomainTermMappings: mappings}, nil
}

// embedKeywords embeds all keywords in one call. On failure every slot stays
// nil and keywords are embedded one by one.
func (p *Stages) embedKeywords(ctx context.Context, s *model.PipelineState) [][]float64 {
	out := make([][]float64, len(s.Keywords))
	vecs, err := p.deps.Embedder.EmbedStrings(ctx, s.Keywords)
	if err != nil || len(vecs) != len(s.Keywords) {
		logStage(logx.Debug(), s, model.StageDomainTermMapper).Err(err).Msg("batch embedding failed, falling back to single keywords")
		return out
	}
	copy(out, vecs)
	return out
}
