package stages

import (
	"context"
	"strings"

	"github.com/chative/sqlagent/internal/agent/graph/prompts"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// IntentAnalyzer decides whether the conversation names something queryable.
func (p *Stages) IntentAnalyzer(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	msgs, err := prompts.Render(ctx, prompts.IntentAnalyzer, nil, p.transcript.Build(s.Turns))
	if err != nil {
		return nil, err
	}
	var out intentOutput
	usage, err := p.deps.LLM.Generate(ctx, string(model.StageIntentAnalyzer), msgs, &out)
	if err != nil {
		return nil, err
	}

	intent := model.QueryIntent{IsClear: out.IsIntentClear}
	if !out.IsIntentClear {
		intent.ClarificationQuestion = strings.TrimSpace(out.ClarificationQuestion)
	}
	logStage(logx.Info(), s, model.StageIntentAnalyzer).Bool("is_clear", intent.IsClear).Msg("intent analyzed")
	return &model.Delta{Stage: model.StageIntentAnalyzer, QueryIntent: &intent, Usage: &usage}, nil
}
