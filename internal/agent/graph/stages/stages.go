// Package stages holds the pipeline steps. Every stage reads a snapshot of the
// pipeline state and returns a delta; none of them mutates shared state.
package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"

	"github.com/chative/sqlagent/internal/agent/graph/conversations"
	"github.com/chative/sqlagent/internal/agent/llm"
	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/vectorstore"
	"github.com/chative/sqlagent/internal/warehouse"
)

// SchemaSource introspects table columns.
type SchemaSource interface {
	ListColumns(ctx context.Context, table string) ([]model.Column, error)
}

// QueryRunner executes read-only SQL with a row cap.
type QueryRunner interface {
	Execute(ctx context.Context, query string) (*warehouse.Result, error)
}

// Deps are the collaborators shared by all stages.
type Deps struct {
	LLM         llm.Generator
	Embedder    embedding.Embedder
	Index       vectorstore.Store
	Schema      SchemaSource
	Runner      QueryRunner
	Checkpoints model.CheckpointRepository
	Config      model.PipelineConfig
	// Dialect is the SQL flavour named in prompts, e.g. "MySQL".
	Dialect string
}

// Stages implements every pipeline step over a fixed set of dependencies.
type Stages struct {
	deps       Deps
	transcript *conversations.Transcript
}

func New(deps Deps) (*Stages, error) {
	switch {
	case deps.LLM == nil:
		return nil, fmt.Errorf("stages: llm is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("stages: embedder is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("stages: similarity index is required")
	case deps.Schema == nil:
		return nil, fmt.Errorf("stages: schema source is required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("stages: query runner is required")
	case deps.Checkpoints == nil:
		return nil, fmt.Errorf("stages: checkpoint repository is required")
	}
	if deps.Dialect == "" {
		deps.Dialect = "ANSI"
	}
	defaults := model.DefaultPipelineConfig()
	if deps.Config.MaxRetries <= 0 {
		deps.Config.MaxRetries = defaults.MaxRetries
	}
	if deps.Config.TableTopK <= 0 {
		deps.Config.TableTopK = defaults.TableTopK
	}
	if deps.Config.PreviewRows <= 0 {
		deps.Config.PreviewRows = defaults.PreviewRows
	}
	if deps.Config.TermThreshold <= 0 {
		deps.Config.TermThreshold = defaults.TermThreshold
	}
	if deps.Config.TableThreshold <= 0 {
		deps.Config.TableThreshold = defaults.TableThreshold
	}
	if deps.Config.RowCap <= 0 {
		deps.Config.RowCap = defaults.RowCap
	}
	if deps.Config.MaxScanRows < deps.Config.RowCap {
		deps.Config.MaxScanRows = max(defaults.MaxScanRows, deps.Config.RowCap)
	}
	return &Stages{deps: deps, transcript: conversations.NewTranscript(deps.Config.HistoryTurns)}, nil
}

// Config returns the pipeline settings the stages run with.
func (p *Stages) Config() model.PipelineConfig { return p.deps.Config }

func (p *Stages) sqlVars() map[string]any {
	return map[string]any{"Dialect": p.deps.Dialect, "RowCap": p.deps.Config.RowCap}
}

// logStage tags a log event with the session and stage.
func logStage(ev *zerolog.Event, s *model.PipelineState, stage model.Stage) *zerolog.Event {
	return ev.Str("session_id", s.SessionID).Str("stage", string(stage))
}

func renderTables(tables []model.TableStructure) string {
	var b strings.Builder
	for _, t := range tables {
		b.WriteString("Table " + t.TableName)
		if t.Description != "" {
			b.WriteString(": " + t.Description)
		}
		b.WriteString("\n")
		for _, c := range t.Columns {
			b.WriteString("  - " + c.Name + " " + c.Type)
			if c.Comment != "" {
				b.WriteString(" -- " + c.Comment)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTerms(terms []model.DomainTerm) string {
	if len(terms) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range terms {
		b.WriteString("- " + t.CanonicalName)
		if t.Description != "" {
			b.WriteString(": " + t.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMappings(s *model.PipelineState) string {
	var b strings.Builder
	keys := make([]string, 0, len(s.DomainTermMappings))
	for k := range s.DomainTermMappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("- " + k + " => " + s.DomainTermMappings[k].CanonicalName + "\n")
	}
	var unresolved []string
	for _, k := range s.Keywords {
		if _, ok := s.DomainTermMappings[k]; !ok {
			unresolved = append(unresolved, k)
		}
	}
	if len(unresolved) > 0 {
		b.WriteString("Unresolved terms (keep verbatim): " + strings.Join(unresolved, ", ") + "\n")
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func section(name, body string) string {
	return "<" + name + ">\n" + body + "\n</" + name + ">\n"
}

func normalizedQuery(s *model.PipelineState) string {
	if s.NormalizedQuery == nil {
		return ""
	}
	return *s.NormalizedQuery
}
