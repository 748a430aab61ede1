package knowledgebase

import (
	"github.com/effective-security/toolagent/corpus"
	"github.com/effective-security/x/values"
)

// Default values
const (
	DefaultPersistDir       = "storage/knowledge_base"
	DefaultCollection       = "ai_documents"
	DefaultTopK             = 2
	DefaultDimensions       = 512
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingURL     = "https://api.openai.com/v1"
	EmbeddingProviderHash   = "hash"
	EmbeddingProviderOpenAI = "openai"
)

// Config of the knowledge base
type Config struct {
	// PersistDir is the directory of the persisted index,
	// the index is kept in memory if empty
	PersistDir string `json:"persist_dir,omitempty" yaml:"persist_dir,omitempty"`
	// Collection is the name prefix of the index collection
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	// TopK is the number of passages returned by Answer
	TopK int `json:"top_k,omitempty" yaml:"top_k,omitempty" validate:"gte=0"`
	// Compress the persisted documents with gzip
	Compress bool `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CorpusFile replaces the built-in documents, JSON, YAML or TOML
	CorpusFile string `json:"corpus_file,omitempty" yaml:"corpus_file,omitempty"`

	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
}

// EmbeddingConfig selects the embedding model
type EmbeddingConfig struct {
	// Provider is hash or openai
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=hash openai"`
	// Model of the openai compatible embeddings endpoint
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL of the openai compatible API, without the /embeddings path
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	// Dimensions of the hash embedding
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty" validate:"gte=0"`
}

// Documents returns the documents from CorpusFile,
// or the built-in ones if not set
func (c *Config) Documents() ([]corpus.Document, error) {
	if c.CorpusFile == "" {
		return corpus.Documents(), nil
	}
	return corpus.LoadDocuments(c.CorpusFile)
}

func (c *Config) topK() int {
	return values.NumbersCoalesce(c.TopK, DefaultTopK)
}

func (c *Config) collection() string {
	return values.StringsCoalesce(c.Collection, DefaultCollection)
}
