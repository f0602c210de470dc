package model

// Stage names a pipeline step. Values double as graph node keys.
type Stage string

const (
	StageLoadSession       Stage = "load_session"
	StageIntentAnalyzer    Stage = "intent_analyzer"
	StageKeywordExtractor  Stage = "keyword_extractor"
	StageDomainTermMapper  Stage = "domain_term_mapper"
	StageQueryNormalizer   Stage = "query_normalizer"
	StageDataSourceLocator Stage = "data_source_locator"
	StageSchemaLoader      Stage = "schema_loader"
	StageSQLGenerator      Stage = "sql_generator"
	StageSQLExecutor       Stage = "sql_executor"
	StageErrorAnalyzer     Stage = "error_analyzer"
	StageResultNarrator    Stage = "result_narrator"
	StageFinalize          Stage = "finalize"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageLoadSession,
	StageIntentAnalyzer,
	StageKeywordExtractor,
	StageDomainTermMapper,
	StageQueryNormalizer,
	StageDataSourceLocator,
	StageSchemaLoader,
	StageSQLGenerator,
	StageSQLExecutor,
	StageErrorAnalyzer,
	StageResultNarrator,
	StageFinalize,
}

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeClarification   Outcome = "clarification"
	OutcomeInfeasible      Outcome = "infeasible"
	OutcomeExecutionFailed Outcome = "execution_failed"
	OutcomeAnswered        Outcome = "answered"
)

// Delta is the partial update a stage returns. Nil fields are left untouched;
// slice fields are appended, map fields are merged.
type Delta struct {
	Stage Stage `json:"stage"`

	// Seed replaces the whole state. Only the session loader sets it.
	Seed *PipelineState `json:"-"`

	QueryIntent         *QueryIntent          `json:"query_intent,omitempty"`
	Keywords            []string              `json:"keywords,omitempty"`
	DomainTermMappings  map[string]DomainTerm `json:"domain_term_mappings,omitempty"`
	NormalizedQuery     *string               `json:"normalized_query,omitempty"`
	MatchedTables       []MatchedTable        `json:"matched_tables,omitempty"`
	TableStructures     []TableStructure      `json:"table_structures,omitempty"`
	FailedTables        []FailedTable         `json:"failed_tables,omitempty"`
	GeneratedSQL        *GeneratedSQL         `json:"generated_sql,omitempty"`
	ExecutionResult     *ExecutionResult      `json:"execution_result,omitempty"`
	ErrorAnalysisResult *ErrorAnalysis        `json:"error_analysis_result,omitempty"`

	// ExecutionAttempted counts one SQL execution against the retry budget.
	ExecutionAttempted bool `json:"execution_attempted,omitempty"`

	Narration *string    `json:"narration,omitempty"`
	Outcome   *Outcome   `json:"outcome,omitempty"`
	Turns     []Turn     `json:"turns,omitempty"`
	Usage     *CostUsage `json:"usage,omitempty"`
}

// Apply merges a delta into the state and bumps its version.
func (s *PipelineState) Apply(d *Delta) {
	if d == nil {
		return
	}
	if d.Seed != nil {
		*s = *d.Seed.Clone()
	}
	if d.QueryIntent != nil {
		s.QueryIntent = *d.QueryIntent
	}
	s.Keywords = append(s.Keywords, d.Keywords...)
	if len(d.DomainTermMappings) > 0 {
		if s.DomainTermMappings == nil {
			s.DomainTermMappings = make(map[string]DomainTerm, len(d.DomainTermMappings))
		}
		for k, v := range d.DomainTermMappings {
			s.DomainTermMappings[k] = v
		}
	}
	if d.NormalizedQuery != nil {
		q := *d.NormalizedQuery
		s.NormalizedQuery = &q
	}
	s.MatchedTables = append(s.MatchedTables, d.MatchedTables...)
	s.TableStructures = append(s.TableStructures, d.TableStructures...)
	s.FailedTables = append(s.FailedTables, d.FailedTables...)
	if d.GeneratedSQL != nil {
		g := *d.GeneratedSQL
		s.GeneratedSQL = &g
	}
	if d.ExecutionResult != nil {
		r := *d.ExecutionResult
		s.ExecutionResult = &r
	}
	if d.ErrorAnalysisResult != nil {
		a := *d.ErrorAnalysisResult
		s.ErrorAnalysisResult = &a
	}
	if d.ExecutionAttempted {
		s.RetryCount++
	}
	if d.Narration != nil {
		s.Narration = *d.Narration
	}
	if d.Outcome != nil {
		s.Outcome = *d.Outcome
	}
	s.Turns = append(s.Turns, d.Turns...)
	if d.Usage != nil {
		s.TotalCostUSD += d.Usage.CostUSD
	}
	s.Version++
}
