package stages

import (
	"context"
	"strings"

	"github.com/chative/sqlagent/internal/agent/graph/prompts"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// QueryNormalizer rewrites the user's side of the conversation into one
// declarative sentence using canonical terms.
func (p *Stages) QueryNormalizer(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	payload := p.transcript.BuildUserOnly(s.Turns) + "\n" + section("resolved_terms", renderMappings(s))
	msgs, err := prompts.Render(ctx, prompts.QueryNormalizer, nil, payload)
	if err != nil {
		return nil, err
	}
	var out normalizedOutput
	usage, err := p.deps.LLM.Generate(ctx, string(model.StageQueryNormalizer), msgs, &out)
	if err != nil {
		return nil, err
	}

	q := strings.TrimSpace(out.NormalizedQuery)
	logStage(logx.Info(), s, model.StageQueryNormalizer).Str("normalized_query", q).Msg("query normalized")
	return &model.Delta{Stage: model.StageQueryNormalizer, NormalizedQuery: &q, Usage: &usage}, nil
}
