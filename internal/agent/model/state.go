package model

import (
	"encoding/json"
	"maps"
	"slices"
)

// StateSchemaVersion is bumped whenever the checkpoint layout of PipelineState changes.
const StateSchemaVersion = 1

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry in the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// QueryIntent is the Intent Analyzer verdict.
type QueryIntent struct {
	IsClear               bool   `json:"is_clear"`
	ClarificationQuestion string `json:"clarification_question,omitempty"`
}

// DomainTerm is the canonical form a raw user term resolved to.
type DomainTerm struct {
	CanonicalName string `json:"canonical_name"`
	Description   string `json:"description"`
}

// MatchedTable is a Data Source Locator candidate.
type MatchedTable struct {
	TableName       string  `json:"table_name"`
	Description     string  `json:"description"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Column is column-level metadata from the database catalog.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// TableStructure is a loaded table schema.
type TableStructure struct {
	TableName   string   `json:"table_name"`
	Columns     []Column `json:"columns"`
	Description string   `json:"description"`
}

// FailedTable records a per-table schema load failure.
type FailedTable struct {
	TableName string `json:"table_name"`
	Error     string `json:"error"`
}

// InfeasibleKind separates the two user-facing infeasibility framings.
type InfeasibleKind string

const (
	InfeasibleNoRelatedTable InfeasibleKind = "no_related_table"
	InfeasibleMissingFields  InfeasibleKind = "missing_fields"
)

// GeneratedSQL is the joint feasibility + SQL generation verdict.
// SQLQuery is non-empty iff IsFeasible.
type GeneratedSQL struct {
	IsFeasible       bool           `json:"is_feasible"`
	InfeasibleKind   InfeasibleKind `json:"infeasible_kind,omitempty"`
	InfeasibleReason string         `json:"infeasible_reason,omitempty"`
	SQLQuery         string         `json:"sql_query,omitempty"`
}

// ErrorKind classifies an execution failure.
type ErrorKind string

const (
	ErrorKindSQL        ErrorKind = "sql"
	ErrorKindRejected   ErrorKind = "rejected"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindConnection ErrorKind = "connection"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindExhausted  ErrorKind = "exhausted"
)

// Systemic reports whether the failure cannot be fixed by rewriting the statement.
func (k ErrorKind) Systemic() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindConnection, ErrorKindPermission, ErrorKindExhausted:
		return true
	}
	return false
}

// Row is one result row keyed by column name. Values are JSON-stable:
// nil, bool, string or json.Number.
type Row map[string]any

// ExecutionResult is the outcome of one SQL Executor invocation.
type ExecutionResult struct {
	Success     bool      `json:"success"`
	Rows        []Row     `json:"rows"`
	Columns     []string  `json:"columns"`
	RowCount    int       `json:"row_count"`
	Truncated   bool      `json:"truncated"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	ExecutedSQL string    `json:"executed_sql"`
	RetryNumber int       `json:"retry_number"`
}

// ErrorAnalysis is the Error Analyzer verdict.
type ErrorAnalysis struct {
	IsSQLFixable bool   `json:"is_sql_fixable"`
	Analysis     string `json:"analysis"`
	FixedSQL     string `json:"fixed_sql,omitempty"`
}

// PipelineState is the single record threaded through every stage of one turn.
// It is owned by exactly one graph run at a time; stages only see Clone()d snapshots
// and report changes as a Delta.
type PipelineState struct {
	SchemaVersion int    `json:"schema_version"`
	Version       int    `json:"version"`
	SessionID     string `json:"session_id"`

	Turns []Turn `json:"turns"`

	QueryIntent         QueryIntent           `json:"query_intent"`
	Keywords            []string              `json:"keywords"`
	DomainTermMappings  map[string]DomainTerm `json:"domain_term_mappings"`
	NormalizedQuery     *string               `json:"normalized_query,omitempty"`
	MatchedTables       []MatchedTable        `json:"matched_tables"`
	TableStructures     []TableStructure      `json:"table_structures"`
	FailedTables        []FailedTable         `json:"failed_tables"`
	GeneratedSQL        *GeneratedSQL         `json:"generated_sql,omitempty"`
	ExecutionResult     *ExecutionResult      `json:"execution_result,omitempty"`
	ErrorAnalysisResult *ErrorAnalysis        `json:"error_analysis_result,omitempty"`
	RetryCount          int                   `json:"retry_count"`

	Narration    string  `json:"narration,omitempty"`
	Outcome      Outcome `json:"outcome,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// NewPipelineState returns an empty state for a session.
func NewPipelineState(sessionID string) *PipelineState {
	return &PipelineState{
		SchemaVersion:      StateSchemaVersion,
		SessionID:          sessionID,
		Turns:              []Turn{},
		Keywords:           []string{},
		DomainTermMappings: map[string]DomainTerm{},
		MatchedTables:      []MatchedTable{},
		TableStructures:    []TableStructure{},
		FailedTables:       []FailedTable{},
	}
}

// BeginTurn clears every per-turn field, keeps the conversation and appends the user turn.
func (s *PipelineState) BeginTurn(userText string) {
	turns := s.Turns
	session := s.SessionID
	version := s.Version
	*s = *NewPipelineState(session)
	s.Turns = append(turns, Turn{Role: RoleUser, Text: userText})
	s.Version = version + 1
}

// LastUserText returns the most recent user turn.
func (s *PipelineState) LastUserText() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return s.Turns[i].Text
		}
	}
	return ""
}

// RetriesExhausted reports whether the execution budget is used up.
func (s *PipelineState) RetriesExhausted(maxRetries int) bool {
	return s.RetryCount >= maxRetries
}

// SQLToExecute returns the statement the executor should run: a pending fix wins
// over the originally generated SQL.
func (s *PipelineState) SQLToExecute() string {
	if s.ErrorAnalysisResult != nil && s.ErrorAnalysisResult.IsSQLFixable && s.ErrorAnalysisResult.FixedSQL != "" {
		return s.ErrorAnalysisResult.FixedSQL
	}
	if s.GeneratedSQL != nil {
		return s.GeneratedSQL.SQLQuery
	}
	return ""
}

// TermDescriptions lists canonical terms and their descriptions in a stable order.
func (s *PipelineState) TermDescriptions() []DomainTerm {
	keys := slices.Sorted(maps.Keys(s.DomainTermMappings))
	seen := make(map[string]bool, len(keys))
	out := make([]DomainTerm, 0, len(keys))
	for _, k := range keys {
		t := s.DomainTermMappings[k]
		if seen[t.CanonicalName] {
			continue
		}
		seen[t.CanonicalName] = true
		out = append(out, t)
	}
	return out
}

// Clone returns a deep copy.
func (s *PipelineState) Clone() *PipelineState {
	if s == nil {
		return nil
	}
	c := *s
	c.Turns = slices.Clone(s.Turns)
	c.Keywords = slices.Clone(s.Keywords)
	c.DomainTermMappings = maps.Clone(s.DomainTermMappings)
	if s.NormalizedQuery != nil {
		q := *s.NormalizedQuery
		c.NormalizedQuery = &q
	}
	c.MatchedTables = slices.Clone(s.MatchedTables)
	c.TableStructures = slices.Clone(s.TableStructures)
	for i := range c.TableStructures {
		c.TableStructures[i].Columns = slices.Clone(c.TableStructures[i].Columns)
	}
	c.FailedTables = slices.Clone(s.FailedTables)
	if s.GeneratedSQL != nil {
		g := *s.GeneratedSQL
		c.GeneratedSQL = &g
	}
	if s.ExecutionResult != nil {
		r := *s.ExecutionResult
		r.Columns = slices.Clone(s.ExecutionResult.Columns)
		r.Rows = slices.Clone(s.ExecutionResult.Rows)
		for i := range r.Rows {
			r.Rows[i] = maps.Clone(r.Rows[i])
		}
		c.ExecutionResult = &r
	}
	if s.ErrorAnalysisResult != nil {
		a := *s.ErrorAnalysisResult
		c.ErrorAnalysisResult = &a
	}
	return &c
}

// QueryInput represents the input for processing one user turn.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Reply is the result of one user turn.
type Reply struct {
	SessionID   string  `json:"session_id"`
	Text        string  `json:"text"`
	Outcome     Outcome `json:"outcome"`
	ExecutedSQL string  `json:"-"`
}

// MarshalState encodes a state for the checkpoint store.
func MarshalState(s *PipelineState) ([]byte, error) {
	return json.Marshal(s)
}
