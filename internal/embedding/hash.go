package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

// HashEmbedder is a deterministic bag-of-tokens embedder. Identical texts map
// to identical vectors and similarity grows with token overlap. Han characters
// count as individual tokens.
type HashEmbedder struct {
	Dims int
}

// NewHashEmbedder returns a HashEmbedder with dims buckets (default 256).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dims: dims}
}

func (h *HashEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, h.Dims)
		for _, tok := range Tokens(text) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(tok))
			v[f.Sum32()%uint32(h.Dims)]++
		}
		out[i] = Normalize(v)
	}
	return out, nil
}

func (h *HashEmbedder) GetType() string { return "Hash" }

// Tokens splits text into lower-cased word tokens.
func Tokens(text string) []string {
	var toks []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			toks = append(toks, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return toks
}
