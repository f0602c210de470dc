package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/chative/sqlagent/internal/agent/graph/parsers"
	"github.com/chative/sqlagent/internal/agent/graph/prompts"
	"github.com/chative/sqlagent/internal/agent/model"
	errx "github.com/chative/sqlagent/internal/core/error"
	logx "github.com/chative/sqlagent/pkg/logger"
)

const noRelatedTableReason = "No table in the database relates to this question."

// SQLGenerator judges feasibility and, only when feasible, writes the SQL.
// With no loaded table the question is infeasible without asking the model.
func (p *Stages) SQLGenerator(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	if len(s.TableStructures) == 0 {
		logStage(logx.Info(), s, model.StageSQLGenerator).Str("infeasible_kind", string(model.InfeasibleNoRelatedTable)).Msg("no table available")
		return &model.Delta{
			Stage: model.StageSQLGenerator,
			GeneratedSQL: &model.GeneratedSQL{
				IsFeasible:       false,
				InfeasibleKind:   model.InfeasibleNoRelatedTable,
				InfeasibleReason: noRelatedTableReason,
			},
		}, nil
	}

	payload := section("question", normalizedQuery(s)) +
		section("tables", renderTables(s.TableStructures)) +
		section("terms", renderTerms(s.TermDescriptions()))
	msgs, err := prompts.Render(ctx, prompts.SQLGenerator, p.sqlVars(), payload)
	if err != nil {
		return nil, err
	}
	var out sqlOutput
	usage, err := p.deps.LLM.Generate(ctx, string(model.StageSQLGenerator), msgs, &out)
	if err != nil {
		return nil, err
	}

	gen := &model.GeneratedSQL{IsFeasible: out.IsFeasible}
	if out.IsFeasible {
		gen.SQLQuery = parsers.CleanSQL(out.SQLQuery)
		if gen.SQLQuery == "" {
			return nil, errx.Malformed(errors.New("sql_generator: sql_query is empty after cleaning"))
		}
	} else {
		gen.InfeasibleKind = model.InfeasibleKind(out.InfeasibleKind)
		gen.InfeasibleReason = strings.TrimSpace(out.InfeasibleReason)
	}

	ev := logStage(logx.Info(), s, model.StageSQLGenerator).Bool("is_feasible", gen.IsFeasible)
	if gen.IsFeasible {
		ev = ev.Str("sql", gen.SQLQuery)
	} else {
		ev = ev.Str("infeasible_kind", string(gen.InfeasibleKind))
	}
	ev.Msg("sql generated")
	return &model.Delta{Stage: model.StageSQLGenerator, GeneratedSQL: gen, Usage: &usage}, nil
}
