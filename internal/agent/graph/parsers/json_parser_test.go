package parsers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/chative/sqlagent/internal/core/error"
)

type verdict struct {
	IsClear  bool   `json:"is_clear"`
	Question string `json:"question,omitempty"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    verdict
	}{
		{"raw", `{"is_clear": true}`, verdict{IsClear: true}},
		{"fenced json", "Sure:\n```json\n{\"is_clear\": false, \"question\": \"Which month?\"}\n```", verdict{Question: "Which month?"}},
		{"generic fence", "```\n{\"is_clear\": true}\n```", verdict{IsClear: true}},
		{"prose around", `Here it is {"is_clear": true, "question": "a {brace} \" quote"} done`, verdict{IsClear: true, Question: `a {brace} " quote`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got verdict
			require.NoError(t, DecodeJSON(tt.content, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSONRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no object", "I cannot help with that"},
		{"unbalanced", `{"is_clear": true`},
		{"unknown field", `{"is_clear": true, "confidence": 0.9}`},
		{"wrong type", `{"is_clear": "yes"}`},
		{"invalid utf8", "{\"question\": \"\xff\"}"},
		{"too large", `{"question": "` + strings.Repeat("a", maxContentLen) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got verdict
			err := DecodeJSON(tt.content, &got)
			require.Error(t, err)
			assert.Equal(t, http.StatusInternalServerError, errx.StatusOf(err))
			assert.Equal(t, errx.MalformedOutputMessage, errx.MessageOf(err))
		})
	}
}

func TestCleanSQL(t *testing.T) {
	assert.Equal(t, "SELECT 1", CleanSQL("  SELECT 1;  "))
	assert.Equal(t, "SELECT a FROM t", CleanSQL("```sql\nSELECT a FROM t;\n```"))
	assert.Equal(t, "SELECT a FROM t", CleanSQL("```\nSELECT a FROM t\n```"))
	assert.Empty(t, CleanSQL("   "))
}

func TestSafeSnippet(t *testing.T) {
	assert.Equal(t, "short", safeSnippet("short"))
	long := strings.Repeat("研", 100)
	got := safeSnippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxErrSnippet+3)
}
