package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/metrics"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// newModelHandler logs model calls and records token and cost metrics.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			ev := logx.Debug().Str("model", info.Type).Str("stage", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages))
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", truncate(um, 500))
				}
			}
			ev.Msg("model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			ev := logx.Debug().Str("model", info.Type).Str("stage", info.Name)
			if output == nil {
				ev.Msg("model call finished")
				return ctx
			}
			if output.Message != nil {
				ev = ev.Str("assistant", truncate(strings.TrimSpace(output.Message.Content), 500))
			}
			if u := usageOf(output); u != nil {
				cost := model.PriceUsage(info.Type, u)
				recordUsage(cost)
				ev = ev.Int("prompt_tokens", cost.PromptTokens).
					Int("completion_tokens", cost.CompletionTokens).
					Float64("cost_usd", cost.CostUSD)
			}
			ev.Msg("model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("model", info.Type).Str("stage", info.Name).Msg("model call failed")
			return ctx
		},
	}
}

func usageOf(output *einomodel.CallbackOutput) *schema.TokenUsage {
	if output.TokenUsage != nil {
		return &schema.TokenUsage{
			PromptTokens:     output.TokenUsage.PromptTokens,
			CompletionTokens: output.TokenUsage.CompletionTokens,
			TotalTokens:      output.TokenUsage.TotalTokens,
		}
	}
	if output.Message != nil && output.Message.ResponseMeta != nil {
		return output.Message.ResponseMeta.Usage
	}
	return nil
}

func recordUsage(u model.CostUsage) {
	metrics.LLMTokens.WithLabelValues(u.Model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokens.WithLabelValues(u.Model, "completion").Add(float64(u.CompletionTokens))
	metrics.LLMCostUSD.WithLabelValues(u.Model).Add(u.CostUSD)
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
