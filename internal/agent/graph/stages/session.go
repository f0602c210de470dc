package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/metrics"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// LoadSession restores the checkpoint of a session, or starts a new one, and
// opens a turn with the user's text.
func (p *Stages) LoadSession(ctx context.Context, in model.QueryInput) (*model.Delta, error) {
	state, err := p.deps.Checkpoints.Load(ctx, in.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrCheckpointNotFound):
		state = model.NewPipelineState(in.SessionID)
	case errors.Is(err, model.ErrCheckpointCorrupt):
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("discarding unreadable checkpoint")
		state = model.NewPipelineState(in.SessionID)
	default:
		return nil, err
	}
	state.SessionID = in.SessionID
	state.BeginTurn(in.Text)

	logStage(logx.Info(), state, model.StageLoadSession).Int("turns", len(state.Turns)).Msg("session loaded")
	return &model.Delta{Stage: model.StageLoadSession, Seed: state}, nil
}

// Finalize decides the outcome of the turn, appends the single assistant reply
// and checkpoints the resulting state.
func (p *Stages) Finalize(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	outcome, text, err := p.reply(s)
	if err != nil {
		return nil, err
	}
	delta := &model.Delta{
		Stage:   model.StageFinalize,
		Outcome: &outcome,
		Turns:   []model.Turn{{Role: model.RoleAssistant, Text: text}},
	}

	next := s.Clone()
	next.Apply(delta)
	if err := p.deps.Checkpoints.Save(ctx, next); err != nil {
		logStage(logx.Error(), s, model.StageFinalize).Err(err).Msg("checkpoint save failed")
	}

	metrics.TurnOutcomes.WithLabelValues(string(outcome)).Inc()
	logStage(logx.Info(), s, model.StageFinalize).
		Str("outcome", string(outcome)).
		Int("retry_count", s.RetryCount).
		Float64("total_cost_usd", s.TotalCostUSD).
		Msg("turn finished")
	return delta, nil
}

func (p *Stages) reply(s *model.PipelineState) (model.Outcome, string, error) {
	switch {
	case !s.QueryIntent.IsClear:
		return model.OutcomeClarification, s.QueryIntent.ClarificationQuestion, nil
	case s.GeneratedSQL != nil && !s.GeneratedSQL.IsFeasible:
		return model.OutcomeInfeasible, infeasibleReply(s.GeneratedSQL), nil
	case s.ExecutionResult != nil && s.ExecutionResult.Success:
		return model.OutcomeAnswered, s.Narration, nil
	case s.ExecutionResult != nil:
		return model.OutcomeExecutionFailed, failureReply(s.ExecutionResult.ErrorKind), nil
	default:
		return "", "", fmt.Errorf("finalize: no terminal condition reached")
	}
}

func infeasibleReply(g *model.GeneratedSQL) string {
	reason := strings.TrimSpace(g.InfeasibleReason)
	switch g.InfeasibleKind {
	case model.InfeasibleMissingFields:
		msg := "I found data related to your question, but it does not contain everything needed to answer it exactly."
		if reason != "" {
			msg += " " + reason
		}
		return msg
	default:
		return "I couldn't find any data related to your question, so I can't answer it from the database. " +
			"Could you check whether it is about information we keep, or rephrase it?"
	}
}

func failureReply(kind model.ErrorKind) string {
	switch kind {
	case model.ErrorKindTimeout:
		return "The query for your question took too long to run. Please narrow it down, for example with a shorter time range, and try again."
	case model.ErrorKindConnection:
		return "I can't reach the database right now. Please try again in a little while."
	case model.ErrorKindPermission:
		return "I don't have permission to read the data needed for this question."
	default:
		return "I wasn't able to build a working query for your question. Please try rephrasing it or adding more detail."
	}
}
