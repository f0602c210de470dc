// Package llm turns a chat model into a structured-output function: a prompt
// plus a Go type in, a parsed and validated value of that type out.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/invopop/jsonschema"

	"github.com/chative/sqlagent/internal/agent/graph/parsers"
	"github.com/chative/sqlagent/internal/agent/model"
	errx "github.com/chative/sqlagent/internal/core/error"
	logx "github.com/chative/sqlagent/pkg/logger"
)

// Output is a structured model answer. Validate enforces invariants the JSON
// schema cannot express.
type Output interface {
	Validate() error
}

// Generator is what stages depend on.
type Generator interface {
	Generate(ctx context.Context, name string, msgs []*schema.Message, out Output) (model.CostUsage, error)
}

// Client implements Generator on top of an eino chat model.
type Client struct {
	chat        einomodel.BaseChatModel
	modelName   string
	maxAttempts int
	backoff     func() backoff.BackOff
}

type Option func(*Client)

// WithMaxAttempts bounds transport attempts per call (default 3).
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackOff overrides the retry schedule.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.backoff = f }
}

func New(chat einomodel.BaseChatModel, modelName string, opts ...Option) *Client {
	c := &Client{
		chat:        chat,
		modelName:   modelName,
		maxAttempts: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ModelName reports the model used for pricing.
func (c *Client) ModelName() string { return c.modelName }

// Generate sends msgs with the JSON schema of out appended to the system
// message, then decodes and validates the reply into out. Transport failures
// are retried; malformed output is not.
func (c *Client) Generate(ctx context.Context, name string, msgs []*schema.Message, out Output) (model.CostUsage, error) {
	usage := model.CostUsage{Model: c.modelName}
	schemaText, err := schemaFor(out)
	if err != nil {
		return usage, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	msgs = withSchema(msgs, schemaText)

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      c.modelName,
		Component: components.ComponentOfChatModel,
	})

	var resp *schema.Message
	attempt := 0
	selfReporting := components.IsCallbacksEnabled(c.chat)
	call := func() error {
		attempt++
		r, err := c.generate(ctx, msgs, selfReporting)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if r == nil {
			return backoff.Permanent(errors.New("chat model returned no message"))
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logx.Warn().Err(err).Str("stage", name).Int("attempt", attempt).Dur("retry_in", wait).Msg("llm call failed")
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), uint64(c.maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(call, policy, notify); err != nil {
		return usage, errx.WrapLLM(fmt.Errorf("%s: %w", name, err))
	}

	if resp.ResponseMeta != nil {
		usage = model.PriceUsage(c.modelName, resp.ResponseMeta.Usage)
	}
	if err := parsers.DecodeJSON(resp.Content, out); err != nil {
		return usage, fmt.Errorf("%s: %w", name, err)
	}
	if err := out.Validate(); err != nil {
		return usage, errx.Malformed(fmt.Errorf("%s: invalid output: %w", name, err))
	}
	logx.Debug().Str("stage", name).Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).Float64("cost_usd", usage.CostUSD).Msg("llm call done")
	return usage, nil
}

// generate calls the chat model, reporting callbacks on its behalf when the
// model does not report them itself.
func (c *Client) generate(ctx context.Context, msgs []*schema.Message, selfReporting bool) (*schema.Message, error) {
	if selfReporting {
		return c.chat.Generate(ctx, msgs)
	}
	ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{Messages: msgs})
	r, err := c.chat.Generate(ctx, msgs)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	out := &einomodel.CallbackOutput{Message: r}
	if r != nil && r.ResponseMeta != nil && r.ResponseMeta.Usage != nil {
		u := r.ResponseMeta.Usage
		out.TokenUsage = &einomodel.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	callbacks.OnEnd(ctx, out)
	return r, nil
}

var schemaCache sync.Map // reflect.Type -> string

// schemaFor reflects the JSON schema of out's type once per type.
func schemaFor(out Output) (string, error) {
	t := reflect.TypeOf(out)
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(string), nil
	}
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(out)
	s.Version = ""
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal output schema: %w", err)
	}
	schemaCache.Store(t, string(b))
	return string(b), nil
}

func withSchema(msgs []*schema.Message, schemaText string) []*schema.Message {
	instruction := "\n\nRespond with exactly one JSON object and nothing else. It must validate against this JSON schema:\n" + schemaText
	out := make([]*schema.Message, 0, len(msgs)+1)
	added := false
	for _, m := range msgs {
		if !added && m != nil && m.Role == schema.System {
			cp := *m
			cp.Content += instruction
			out = append(out, &cp)
			added = true
			continue
		}
		out = append(out, m)
	}
	if !added {
		out = append([]*schema.Message{schema.SystemMessage(instruction[2:])}, out...)
	}
	return out
}
