package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/metrics"
)

type stageStartKey struct{}

var knownStages = func() map[string]bool {
	m := make(map[string]bool, len(model.Stages))
	for _, s := range model.Stages {
		m[string(s)] = true
	}
	return m
}()

// NewStageCallbacks times every pipeline stage node into the stage duration histogram.
func NewStageCallbacks() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if !isStage(info) {
				return ctx
			}
			return context.WithValue(ctx, stageStartKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			observeStage(ctx, info, "ok")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, _ error) context.Context {
			observeStage(ctx, info, "error")
			return ctx
		}).
		Build()
}

func isStage(info *einocb.RunInfo) bool {
	return info != nil && info.Component == compose.ComponentOfLambda && knownStages[info.Name]
}

func observeStage(ctx context.Context, info *einocb.RunInfo, status string) {
	if !isStage(info) {
		return
	}
	start, ok := ctx.Value(stageStartKey{}).(time.Time)
	if !ok {
		return
	}
	metrics.StageDuration.WithLabelValues(info.Name, status).Observe(time.Since(start).Seconds())
}
