package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"
)

// Task types understood by the Gemini embedding endpoint.
const (
	TaskRetrievalQuery     = "RETRIEVAL_QUERY"
	TaskRetrievalDocument  = "RETRIEVAL_DOCUMENT"
	TaskSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// GenAIEmbedder embeds text with a Gemini embedding model.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
}

// NewGenAI builds an embedder sharing an existing genai client.
func NewGenAI(client *genai.Client, model string, dimensions int, taskType string) *GenAIEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = TaskSemanticSimilarity
	}
	return &GenAIEmbedder{client: client, model: model, dimensions: dimensions, taskType: taskType}
}

// EmbedStrings returns one unit-length vector per text.
func (e *GenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		cfg.OutputDimensionality = &dims
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		v := make([]float64, len(emb.Values))
		for j, x := range emb.Values {
			v[j] = float64(x)
		}
		out[i] = Normalize(v)
	}
	return out, nil
}

// Dimensions reports the configured output size.
func (e *GenAIEmbedder) Dimensions() int { return e.dimensions }

// GetType implements eino's components.Typer.
func (e *GenAIEmbedder) GetType() string { return "GenAI" }
