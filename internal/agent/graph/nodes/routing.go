package nodes

import (
	"fmt"

	"github.com/chative/sqlagent/internal/agent/model"
)

// RouteConfig holds the settings routing depends on.
type RouteConfig struct {
	MaxRetries int
}

var successors = map[model.Stage][]model.Stage{
	model.StageLoadSession:       {model.StageIntentAnalyzer},
	model.StageIntentAnalyzer:    {model.StageKeywordExtractor, model.StageFinalize},
	model.StageKeywordExtractor:  {model.StageDomainTermMapper, model.StageQueryNormalizer},
	model.StageDomainTermMapper:  {model.StageQueryNormalizer},
	model.StageQueryNormalizer:   {model.StageDataSourceLocator},
	model.StageDataSourceLocator: {model.StageSchemaLoader},
	model.StageSchemaLoader:      {model.StageSQLGenerator},
	model.StageSQLGenerator:      {model.StageSQLExecutor, model.StageFinalize},
	model.StageSQLExecutor:       {model.StageResultNarrator, model.StageErrorAnalyzer, model.StageFinalize},
	model.StageErrorAnalyzer:     {model.StageSQLExecutor, model.StageFinalize},
	model.StageResultNarrator:    {model.StageFinalize},
	model.StageFinalize:          nil,
}

// Successors lists every stage that may follow stage. The finalize stage has none.
func Successors(stage model.Stage) []model.Stage {
	return successors[stage]
}

// Next decides the stage after the one that just completed. It reads the
// state but never changes it.
func Next(stage model.Stage, s *model.PipelineState, cfg RouteConfig) (model.Stage, error) {
	switch stage {
	case model.StageLoadSession:
		return model.StageIntentAnalyzer, nil

	case model.StageIntentAnalyzer:
		if !s.QueryIntent.IsClear {
			return model.StageFinalize, nil
		}
		return model.StageKeywordExtractor, nil

	case model.StageKeywordExtractor:
		if len(s.Keywords) == 0 {
			return model.StageQueryNormalizer, nil
		}
		return model.StageDomainTermMapper, nil

	case model.StageDomainTermMapper:
		return model.StageQueryNormalizer, nil
	case model.StageQueryNormalizer:
		return model.StageDataSourceLocator, nil
	case model.StageDataSourceLocator:
		return model.StageSchemaLoader, nil
	case model.StageSchemaLoader:
		return model.StageSQLGenerator, nil

	case model.StageSQLGenerator:
		if s.GeneratedSQL == nil {
			return "", fmt.Errorf("route %s: generated sql missing", stage)
		}
		if !s.GeneratedSQL.IsFeasible {
			return model.StageFinalize, nil
		}
		return model.StageSQLExecutor, nil

	case model.StageSQLExecutor:
		er := s.ExecutionResult
		if er == nil {
			return "", fmt.Errorf("route %s: execution result missing", stage)
		}
		switch {
		case er.Success:
			return model.StageResultNarrator, nil
		case er.ErrorKind == model.ErrorKindExhausted, s.RetriesExhausted(normalizeMaxRetries(cfg.MaxRetries)):
			return model.StageFinalize, nil
		default:
			return model.StageErrorAnalyzer, nil
		}

	case model.StageErrorAnalyzer:
		if s.ErrorAnalysisResult == nil {
			return "", fmt.Errorf("route %s: error analysis missing", stage)
		}
		if s.ErrorAnalysisResult.IsSQLFixable {
			return model.StageSQLExecutor, nil
		}
		return model.StageFinalize, nil

	case model.StageResultNarrator:
		return model.StageFinalize, nil
	}
	return "", fmt.Errorf("route: no transition from stage %q", stage)
}

// MaxSteps bounds one graph run: every stage once, plus an executor and
// analyzer visit per retry.
func MaxSteps(cfg RouteConfig) int {
	return len(model.Stages) + 2*normalizeMaxRetries(cfg.MaxRetries) + 4
}
