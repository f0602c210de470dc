package prompts

import (
	"context"
	"embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Name identifies an embedded system prompt.
type Name string

const (
	IntentAnalyzer   Name = "intent_analyzer"
	KeywordExtractor Name = "keyword_extractor"
	QueryNormalizer  Name = "query_normalizer"
	SQLGenerator     Name = "sql_generator"
	ErrorAnalyzer    Name = "error_analyzer"
	ResultNarrator   Name = "result_narrator"
)

//go:embed template/*.txt
var templates embed.FS

// Render formats the named system prompt with vars through the Eino prompt
// component, which emits Prompt callbacks, and appends payload as the user message.
func Render(ctx context.Context, name Name, vars map[string]any, payload string) ([]*schema.Message, error) {
	system, err := templates.ReadFile("template/" + string(name) + ".txt")
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(string(system)),
		schema.MessagesPlaceholder("user_messages", false),
	)
	all := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		all[k] = v
	}
	all["user_messages"] = []*schema.Message{schema.UserMessage(payload)}

	msgs, err := tpl.Format(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("prompt %s render: %w", name, err)
	}
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return nil, fmt.Errorf("prompt %s render: unexpected %d messages", name, len(msgs))
	}
	return msgs, nil
}
