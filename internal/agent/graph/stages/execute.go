package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/metrics"
	"github.com/chative/sqlagent/internal/warehouse"
	logx "github.com/chative/sqlagent/pkg/logger"
)

const exhaustedError = "retry budget exhausted"

// SQLExecutor runs the pending statement, preferring a fix from the error
// analyzer over the generated SQL. Each execution counts against the retry
// budget; once the budget is used up the database is not touched.
func (p *Stages) SQLExecutor(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	if s.RetriesExhausted(p.deps.Config.MaxRetries) {
		metrics.SQLExecutions.WithLabelValues(string(model.ErrorKindExhausted)).Inc()
		logStage(logx.Warn(), s, model.StageSQLExecutor).Int("retry_count", s.RetryCount).Msg("execution refused")
		return &model.Delta{
			Stage: model.StageSQLExecutor,
			ExecutionResult: &model.ExecutionResult{
				Success:     false,
				Rows:        []model.Row{},
				Columns:     []string{},
				Error:       exhaustedError,
				ErrorKind:   model.ErrorKindExhausted,
				RetryNumber: s.RetryCount,
			},
		}, nil
	}

	query := s.SQLToExecute()
	if query == "" {
		return nil, fmt.Errorf("sql executor: no statement to execute")
	}
	attempt := s.RetryCount + 1

	res, err := p.deps.Runner.Execute(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := warehouse.KindOf(err)
		metrics.SQLExecutions.WithLabelValues(string(kind)).Inc()
		logStage(logx.Warn(), s, model.StageSQLExecutor).Err(err).
			Str("error_kind", string(kind)).Int("attempt", attempt).Str("sql", query).Msg("execution failed")
		return &model.Delta{
			Stage:              model.StageSQLExecutor,
			ExecutionAttempted: true,
			ExecutionResult: &model.ExecutionResult{
				Success:     false,
				Rows:        []model.Row{},
				Columns:     []string{},
				Error:       err.Error(),
				ErrorKind:   kind,
				ExecutedSQL: query,
				RetryNumber: attempt,
			},
		}, nil
	}
	if res == nil {
		return nil, errors.New("sql executor: runner returned no result")
	}

	metrics.SQLExecutions.WithLabelValues("success").Inc()
	logStage(logx.Info(), s, model.StageSQLExecutor).
		Int("attempt", attempt).Int("row_count", res.RowCount).Bool("truncated", res.Truncated).Msg("execution succeeded")
	return &model.Delta{
		Stage:              model.StageSQLExecutor,
		ExecutionAttempted: true,
		ExecutionResult: &model.ExecutionResult{
			Success:     true,
			Rows:        res.Rows,
			Columns:     res.Columns,
			RowCount:    res.RowCount,
			Truncated:   res.Truncated,
			ExecutedSQL: query,
			RetryNumber: attempt,
		},
	}, nil
}
