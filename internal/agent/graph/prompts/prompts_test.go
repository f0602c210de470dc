package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAllPrompts(t *testing.T) {
	vars := map[string]any{"Dialect": "sqlite", "RowCap": 100}
	for _, name := range []Name{IntentAnalyzer, KeywordExtractor, QueryNormalizer, SQLGenerator, ErrorAnalyzer, ResultNarrator} {
		t.Run(string(name), func(t *testing.T) {
			msgs, err := Render(context.Background(), name, vars, "payload")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, schema.System, msgs[0].Role)
			assert.NotEmpty(t, msgs[0].Content)
			assert.NotContains(t, msgs[0].Content, "{{")
			assert.Equal(t, schema.User, msgs[1].Role)
			assert.Equal(t, "payload", msgs[1].Content)
		})
	}
}

func TestRenderSubstitutesVars(t *testing.T) {
	msgs, err := Render(context.Background(), SQLGenerator, map[string]any{"Dialect": "mysql", "RowCap": 50}, "q")
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, "one mysql SQL query")
	assert.Contains(t, msgs[0].Content, "LIMIT 50")
}

func TestRenderKeepsPayloadVerbatim(t *testing.T) {
	payload := "literal {{.Dialect}} and {braces}"
	msgs, err := Render(context.Background(), IntentAnalyzer, nil, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, msgs[1].Content)
}

func TestRenderUnknownPrompt(t *testing.T) {
	_, err := Render(context.Background(), Name("missing"), nil, "x")
	assert.Error(t, err)
}
