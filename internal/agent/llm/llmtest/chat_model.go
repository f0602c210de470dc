// Package llmtest provides a scripted eino chat model for offline tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reply is one scripted answer.
type Reply struct {
	Content string
	Err     error
	Usage   *schema.TokenUsage
}

// JSON scripts a reply whose content is v encoded as JSON.
func JSON(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Content: string(b), Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}}
}

// Text scripts a raw reply.
func Text(s string) Reply { return Reply{Content: s} }

// Fail scripts a transport error.
func Fail(err error) Reply { return Reply{Err: err} }

type rule struct {
	match   string
	replies []Reply
	next    int
	calls   int
}

// Call records one request.
type Call struct {
	Rule     string
	Messages []*schema.Message
}

// ChatModel answers with the replies of the first rule whose match string is
// contained in the system message. Replies are consumed in order and the last
// one repeats.
type ChatModel struct {
	mu    sync.Mutex
	rules []*rule
	calls []Call
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

func New() *ChatModel { return &ChatModel{} }

// On adds a rule.
func (m *ChatModel) On(match string, replies ...Reply) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, &rule{match: match, replies: replies})
	return m
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	system := ""
	for _, msg := range input {
		if msg != nil && msg.Role == schema.System {
			system = msg.Content
			break
		}
	}
	for _, r := range m.rules {
		if !strings.Contains(system, r.match) || len(r.replies) == 0 {
			continue
		}
		m.calls = append(m.calls, Call{Rule: r.match, Messages: input})
		r.calls++
		reply := r.replies[min(r.next, len(r.replies)-1)]
		r.next++
		if reply.Err != nil {
			return nil, reply.Err
		}
		msg := schema.AssistantMessage(reply.Content, nil)
		if reply.Usage != nil {
			msg.ResponseMeta = &schema.ResponseMeta{Usage: reply.Usage}
		}
		return msg, nil
	}
	return nil, fmt.Errorf("llmtest: no scripted reply for prompt %q", head(system))
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns the recorded requests.
func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount reports how many requests matched the rule.
func (m *ChatModel) CallCount(match string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rules {
		if r.match == match {
			n += r.calls
		}
	}
	return n
}

func head(s string) string {
	if len(s) > 60 {
		return s[:60]
	}
	return s
}
