package stages

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/require"

	"github.com/chative/sqlagent/internal/agent/llm"
	"github.com/chative/sqlagent/internal/agent/llm/llmtest"
	"github.com/chative/sqlagent/internal/agent/model"
	"github.com/chative/sqlagent/internal/agent/repo"
	"github.com/chative/sqlagent/internal/vectorstore"
	"github.com/chative/sqlagent/internal/warehouse"
)

// Opening phrases of the system prompts, used to route scripted replies.
const (
	intentPrompt    = "You are the intent analyzer"
	keywordsPrompt  = "You extract the entity strings"
	normalizePrompt = "You rewrite a conversation"
	sqlPrompt       = "You judge whether a data question"
	analyzePrompt   = "You diagnose a failed"
	narratePrompt   = "You describe the result of a database query"
)

// vectorEmbedder returns fixed vectors for known texts and fails otherwise.
type vectorEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float64
	failBatch bool
	calls     int
}

func (e *vectorEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failBatch && len(texts) > 1 {
		return nil, fmt.Errorf("batch rejected")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

type fakeSchema struct {
	tables map[string][]model.Column
}

func (f *fakeSchema) ListColumns(_ context.Context, table string) ([]model.Column, error) {
	cols, ok := f.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", warehouse.ErrTableNotFound, table)
	}
	return cols, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fn    func(query string) (*warehouse.Result, error)
}

func (f *fakeRunner) Execute(_ context.Context, query string) (*warehouse.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return &warehouse.Result{Columns: []string{}, Rows: []model.Row{}}, nil
	}
	return fn(query)
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixture struct {
	chat     *llmtest.ChatModel
	embedder *vectorEmbedder
	index    *vectorstore.Memory
	schema   *fakeSchema
	runner   *fakeRunner
	repo     *repo.MemoryCheckpointRepository
	stages   *Stages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chat:     llmtest.New(),
		embedder: &vectorEmbedder{vectors: map[string][]float64{}},
		index:    vectorstore.NewMemory(),
		schema:   &fakeSchema{tables: map[string][]model.Column{}},
		runner:   &fakeRunner{},
		repo:     repo.NewMemoryCheckpointRepository(time.Hour, 0),
	}
	f.stages = f.build(t, model.DefaultPipelineConfig(), f.runner)
	return f
}

func (f *fixture) build(t *testing.T, cfg model.PipelineConfig, runner QueryRunner) *Stages {
	t.Helper()
	client := llm.New(f.chat, "gemini-2.5-flash",
		llm.WithMaxAttempts(2),
		llm.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	st, err := New(Deps{
		LLM:         client,
		Embedder:    f.embedder,
		Index:       f.index,
		Schema:      f.schema,
		Runner:      runner,
		Checkpoints: f.repo,
		Config:      cfg,
		Dialect:     "SQLite",
	})
	require.NoError(t, err)
	return st
}

// newState opens a turn on a fresh session.
func newState(text string) *model.PipelineState {
	s := model.NewPipelineState("sess-1")
	s.BeginTurn(text)
	return s
}

func strPtr(s string) *string { return &s }
