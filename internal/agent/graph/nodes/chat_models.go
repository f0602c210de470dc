package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/chative/sqlagent/internal/agent/model"
	logx "github.com/chative/sqlagent/pkg/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// NewGenAIClient creates the Gemini API client shared by the chat model and the embedder.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModel creates the chat model every stage talks to. The genai client is
// only used by the gemini provider and may be nil otherwise.
func NewChatModel(ctx context.Context, cfg model.LLMConfig, client *genai.Client) (einomodel.BaseChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		if client == nil {
			return nil, fmt.Errorf("gemini provider requires a genai client")
		}
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       cfg.Model,
			Temperature: &cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: false,
				ThinkingBudget:  genai.Ptr(int32(1024)),
			},
		})
		if err != nil {
			logx.Error().Err(err).Msg("Error creating Gemini chat model")
			return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
		}
		return cm, nil

	case ProviderOpenAI:
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: &cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			logx.Error().Err(err).Msg("Error creating OpenAI chat model")
			return nil, fmt.Errorf("error creating OpenAI chat model: %w", err)
		}
		return cm, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
