package knowledgebase

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	chromem "github.com/philippgille/chromem-go"
)

// ErrNoTerms is returned by the hash embedding for text without any terms
var ErrNoTerms = errors.New("no terms to embed")

// Embedder is an embedding function with its identity.
// Vectors of different embedders are not comparable.
type Embedder struct {
	ID   string
	Func chromem.EmbeddingFunc
}

// NewEmbedder returns the embedder for the configuration
func NewEmbedder(cfg EmbeddingConfig) (*Embedder, error) {
	switch values.StringsCoalesce(cfg.Provider, EmbeddingProviderHash) {
	case EmbeddingProviderHash:
		dims := values.NumbersCoalesce(cfg.Dimensions, DefaultDimensions)
		return &Embedder{
			ID:   "hash" + strconv.Itoa(dims),
			Func: NewHashEmbedding(dims),
		}, nil
	case EmbeddingProviderOpenAI:
		model := values.StringsCoalesce(cfg.Model, DefaultEmbeddingModel)
		baseURL := strings.TrimSuffix(values.StringsCoalesce(cfg.BaseURL, DefaultEmbeddingURL), "/")
		token := values.StringsCoalesce(cfg.Token, os.Getenv("OPENAI_API_KEY"))
		return &Embedder{
			ID:   "openai-" + model,
			Func: chromem.NewEmbeddingFuncOpenAICompat(baseURL, token, model, nil),
		}, nil
	default:
		return nil, errors.Newf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// NewHashEmbedding returns a local embedding function that hashes
// the terms of the text into a vector of dims dimensions.
// The vectors are normalized.
func NewHashEmbedding(dims int) chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		var n int
		for _, term := range Terms(text) {
			h := xxhash.Sum64String(term)
			idx := h % uint64(dims)
			if h>>63 == 1 {
				vec[idx]--
			} else {
				vec[idx]++
			}
			n++
		}
		if n == 0 {
			return nil, ErrNoTerms
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return nil, ErrNoTerms
		}
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
		return vec, nil
	}
}

// Terms returns the lower case words of the text without stop words
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := words[:0]
	for _, w := range words {
		if _, ok := stopWords[w]; ok {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about an and are as at be by can could do does for from has have how
		i in into is it its me my of on or s t than that the their them then there these they this to
		us was we were what when where which who why will with would you your tell explain describe`) {
		stopWords[w] = struct{}{}
	}
}
