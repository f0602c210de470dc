package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/chative/sqlagent/internal/agent/graph/stages"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// StageFunc is the shape of every stage between session load and finalize.
type StageFunc func(ctx context.Context, s *model.PipelineState) (*model.Delta, error)

// Key returns the graph node key of a stage.
func Key(stage model.Stage) string { return string(stage) }

// Handlers maps each middle stage to its implementation.
func Handlers(st *stages.Stages) map[model.Stage]StageFunc {
	return map[model.Stage]StageFunc{
		model.StageIntentAnalyzer:    st.IntentAnalyzer,
		model.StageKeywordExtractor:  st.KeywordExtractor,
		model.StageDomainTermMapper:  st.DomainTermMapper,
		model.StageQueryNormalizer:   st.QueryNormalizer,
		model.StageDataSourceLocator: st.DataSourceLocator,
		model.StageSchemaLoader:      st.SchemaLoader,
		model.StageSQLGenerator:      st.SQLGenerator,
		model.StageSQLExecutor:       st.SQLExecutor,
		model.StageErrorAnalyzer:     st.ErrorAnalyzer,
		model.StageResultNarrator:    st.ResultNarrator,
	}
}

// snapshot copies the graph state so a stage never holds a reference into it.
func snapshot(ctx context.Context) (*model.PipelineState, error) {
	var snap *model.PipelineState
	err := compose.ProcessState(ctx, func(_ context.Context, s *model.PipelineState) error {
		snap = s.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read pipeline state: %w", err)
	}
	return snap, nil
}

// NewLoadSessionNode creates the entry node that restores or starts a session.
func NewLoadSessionNode(st *stages.Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (*model.Delta, error) {
		return st.LoadSession(ctx, in)
	})
}

// NewStageNode wraps a stage as a lambda over deltas. The incoming delta is
// ignored; the stage reads the state snapshot instead.
func NewStageNode(stage model.Stage, fn StageFunc) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Delta) (*model.Delta, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		d, err := fn(ctx, snap)
		if err != nil {
			logx.Error().Err(err).Str("session_id", snap.SessionID).Str("stage", string(stage)).Msg("stage failed")
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		if d == nil {
			d = &model.Delta{}
		}
		d.Stage = stage
		return d, nil
	})
}

// NewApplyDeltaPostHandler merges a stage's delta into the graph state.
func NewApplyDeltaPostHandler() func(context.Context, *model.Delta, *model.PipelineState) (*model.Delta, error) {
	return func(ctx context.Context, out *model.Delta, state *model.PipelineState) (*model.Delta, error) {
		state.Apply(out)
		logx.Debug().Str("session_id", state.SessionID).Str("stage", string(out.Stage)).
			Int("version", state.Version).Msg("delta applied")
		return out, nil
	}
}

// NewFinalizeNode creates the terminal node. It applies its own delta and
// returns the reply built from the final state.
func NewFinalizeNode(st *stages.Stages) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Delta) (*model.Reply, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		d, err := st.Finalize(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", model.StageFinalize, err)
		}

		var reply *model.Reply
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.PipelineState) error {
			s.Apply(d)
			reply = ReplyOf(s)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("write pipeline state: %w", err)
		}
		return reply, nil
	})
}

// ReplyOf builds the transport reply from a finalized state.
func ReplyOf(s *model.PipelineState) *model.Reply {
	reply := &model.Reply{SessionID: s.SessionID, Outcome: s.Outcome}
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == model.RoleAssistant {
			reply.Text = s.Turns[i].Text
			break
		}
	}
	if s.ExecutionResult != nil {
		reply.ExecutedSQL = s.ExecutionResult.ExecutedSQL
	}
	return reply
}

// NewRouteCondition returns the branch condition that follows stage. The
// decision is taken by Next on the state after the delta was applied.
func NewRouteCondition(stage model.Stage, cfg RouteConfig) func(context.Context, *model.Delta) (string, error) {
	return func(ctx context.Context, _ *model.Delta) (string, error) {
		var next model.Stage
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.PipelineState) error {
			var err error
			next, err = Next(stage, s, cfg)
			if err == nil {
				logx.Debug().Str("session_id", s.SessionID).Str("from", string(stage)).Str("to", string(next)).Msg("routing")
			}
			return err
		})
		if err != nil {
			return "", err
		}
		return Key(next), nil
	}
}
