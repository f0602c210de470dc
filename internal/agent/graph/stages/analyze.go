package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/chative/sqlagent/internal/agent/graph/parsers"
	"github.com/chative/sqlagent/internal/agent/graph/prompts"
	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// ErrorAnalyzer classifies a failed execution. Systemic failures are never sent
// to the model; for the rest the model may propose a corrected statement.
func (p *Stages) ErrorAnalyzer(ctx context.Context, s *model.PipelineState) (*model.Delta, error) {
	er := s.ExecutionResult
	if er == nil || er.Success {
		return nil, fmt.Errorf("error analyzer: no failed execution to analyze")
	}

	if er.ErrorKind.Systemic() {
		analysis := &model.ErrorAnalysis{
			IsSQLFixable: false,
			Analysis:     fmt.Sprintf("The failure is a %s problem, not an error in the statement.", er.ErrorKind),
		}
		logStage(logx.Info(), s, model.StageErrorAnalyzer).Str("error_kind", string(er.ErrorKind)).Msg("systemic failure")
		return &model.Delta{Stage: model.StageErrorAnalyzer, ErrorAnalysisResult: analysis}, nil
	}

	payload := section("question", normalizedQuery(s)) +
		section("failed_sql", er.ExecutedSQL) +
		section("error", er.Error) +
		section("tables", renderTables(s.TableStructures)) +
		section("terms", renderTerms(s.TermDescriptions()))
	msgs, err := prompts.Render(ctx, prompts.ErrorAnalyzer, p.sqlVars(), payload)
	if err != nil {
		return nil, err
	}
	var out analysisOutput
	usage, err := p.deps.LLM.Generate(ctx, string(model.StageErrorAnalyzer), msgs, &out)
	if err != nil {
		return nil, err
	}

	analysis := &model.ErrorAnalysis{IsSQLFixable: out.IsSQLFixable, Analysis: strings.TrimSpace(out.Analysis)}
	if out.IsSQLFixable {
		fixed := parsers.CleanSQL(out.FixedSQL)
		if fixed == "" || sameStatement(fixed, er.ExecutedSQL) {
			analysis.IsSQLFixable = false
			analysis.Analysis += " The proposed fix does not change the statement."
		} else {
			analysis.FixedSQL = fixed
		}
	}

	logStage(logx.Info(), s, model.StageErrorAnalyzer).
		Bool("is_sql_fixable", analysis.IsSQLFixable).Str("analysis", analysis.Analysis).Msg("error analyzed")
	return &model.Delta{Stage: model.StageErrorAnalyzer, ErrorAnalysisResult: analysis, Usage: &usage}, nil
}

func sameStatement(a, b string) bool {
	return strings.Join(strings.Fields(parsers.CleanSQL(a)), " ") == strings.Join(strings.Fields(parsers.CleanSQL(b)), " ")
}
