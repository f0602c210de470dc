package stages

import (
	"context"
	"strings"

	"github.com/chative/sqlagent/internal/agent/graph/prompts"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// KeywordExtractor pulls out the entity strings that need exact-match resolution.
func (p *Stages) KeywordExtractor(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	msgs, err := prompts.Render(ctx, prompts.KeywordExtractor, nil, p.transcript.Build(s.Turns))
	if err != nil {
		return nil, err
	}
	var out keywordsOutput
	usage, err := p.deps.LLM.Generate(ctx, string(model.StageKeywordExtractor), msgs, &out)
	if err != nil {
		return nil, err
	}

	keywords := dedupe(out.Keywords)
	logStage(logx.Info(), s, model.StageKeywordExtractor).Strs("keywords", keywords).Msg("keywords extracted")
	return &model.Delta{Stage: model.StageKeywordExtractor, Keywords: keywords, Usage: &usage}, nil
}

// dedupe trims, drops empties and keeps the first occurrence of each string.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
