// Package knowledgebase provides the semantic index over the seed documents
// and the ai_knowledge_base tool.
//
// The index is built lazily on the first use, persisted to PersistDir,
// and loaded from disk by the later runs unless a rebuild is forced.
package knowledgebase

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/corpus"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/xlog"
	chromem "github.com/philippgille/chromem-go"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "knowledgebase")

// NoResults is returned by Answer when nothing matches the query
const NoResults = "No relevant information found in the knowledge base."

// KnowledgeBase answers questions from the indexed documents
type KnowledgeBase struct {
	cfg   Config
	embed *Embedder
	docs  []corpus.Document
	name  string

	lock       sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	builds     atomic.Int32
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// New returns the knowledge base, the index is not created until
// Initialize or Answer is called
func New(cfg *Config, embed *Embedder, docs []corpus.Document) (*KnowledgeBase, error) {
	if embed == nil || embed.Func == nil {
		return nil, errors.New("embedding function is required")
	}
	if len(docs) == 0 {
		return nil, errors.New("no documents to index")
	}
	kb := &KnowledgeBase{
		cfg:   *cfg,
		embed: embed,
		docs:  docs,
		name:  cfg.collection() + "-" + invalidNameChars.ReplaceAllString(embed.ID, "_"),
	}
	return kb, nil
}

// Collection returns the name of the index collection
func (kb *KnowledgeBase) Collection() string {
	return kb.name
}

// BuildCount returns the number of times the index was built from the documents
func (kb *KnowledgeBase) BuildCount() int {
	return int(kb.builds.Load())
}

// Initialize loads the persisted index, or builds it from the documents.
// It is a no-op once initialized, unless force is set.
func (kb *KnowledgeBase) Initialize(ctx context.Context, force bool) error {
	kb.lock.Lock()
	defer kb.lock.Unlock()

	if kb.collection != nil && !force {
		return nil
	}
	if kb.db == nil {
		db, err := kb.openDB()
		if err != nil {
			return err
		}
		kb.db = db
	}

	if !force {
		c := kb.db.GetCollection(kb.name, kb.embed.Func)
		if c != nil && c.Count() == len(kb.docs) {
			kb.collection = c
			metricskey.StatsKnowledgeBaseLoads.IncrCounter(1, kb.name)
			logger.ContextKV(ctx, xlog.INFO,
				"status", "loaded",
				"collection", kb.name,
				"dir", kb.cfg.PersistDir,
				"documents", c.Count())
			return nil
		}
		if c != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "stale_index",
				"collection", kb.name,
				"documents", c.Count(),
				"expected", len(kb.docs))
		}
	}

	c, err := kb.build(ctx)
	if err != nil {
		return err
	}
	kb.collection = c
	return nil
}

func (kb *KnowledgeBase) openDB() (*chromem.DB, error) {
	dir := kb.cfg.PersistDir
	if dir == "" {
		return chromem.NewDB(), nil
	}

	db, err := chromem.NewPersistentDB(dir, kb.cfg.Compress)
	if err == nil {
		return db, nil
	}

	logger.KV(xlog.WARNING,
		"reason", "load_failed",
		"dir", dir,
		"err", err.Error())

	if rerr := os.RemoveAll(dir); rerr != nil {
		return nil, errors.Wrapf(rerr, "unable to remove index directory %s", dir)
	}
	db, err = chromem.NewPersistentDB(dir, kb.cfg.Compress)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create index directory %s", dir)
	}
	return db, nil
}

func (kb *KnowledgeBase) build(ctx context.Context) (*chromem.Collection, error) {
	started := time.Now()
	defer metricskey.PerfKnowledgeBaseBuild.MeasureSince(started, kb.name)

	if err := kb.db.DeleteCollection(kb.name); err != nil {
		return nil, errors.Wrap(err, "unable to delete collection")
	}
	c, err := kb.db.CreateCollection(kb.name, map[string]string{"embedder": kb.embed.ID}, kb.embed.Func)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create collection")
	}

	docs := make([]chromem.Document, 0, len(kb.docs))
	for _, d := range kb.docs {
		vec, err := kb.embed.Func(ctx, d.Title+"\n"+d.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to embed document %q", d.ID)
		}
		docs = append(docs, chromem.Document{
			ID:        d.ID,
			Metadata:  map[string]string{"title": d.Title},
			Embedding: vec,
			Content:   d.Content,
		})
	}
	if err = c.AddDocuments(ctx, docs, 1); err != nil {
		return nil, errors.Wrap(err, "unable to add documents")
	}

	kb.builds.Add(1)
	metricskey.StatsKnowledgeBaseBuilds.IncrCounter(1, kb.name)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "built",
		"collection", kb.name,
		"dir", kb.cfg.PersistDir,
		"documents", len(docs),
		"elapsed", time.Since(started).String())
	return c, nil
}

// Passage is a retrieved document
type Passage struct {
	ID         string  `json:"id" yaml:"id"`
	Title      string  `json:"title" yaml:"title"`
	Content    string  `json:"content" yaml:"content"`
	Similarity float32 `json:"similarity" yaml:"similarity"`
}

// Search returns up to TopK passages similar to the query
func (kb *KnowledgeBase) Search(ctx context.Context, query string) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}
	if err := kb.Initialize(ctx, false); err != nil {
		return nil, err
	}

	kb.lock.Lock()
	c := kb.collection
	kb.lock.Unlock()

	n := min(kb.cfg.topK(), c.Count())
	if n == 0 {
		return nil, nil
	}
	res, err := c.Query(ctx, query, n, nil, nil)
	if err != nil {
		if errors.Is(err, ErrNoTerms) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "unable to query the index")
	}

	passages := make([]Passage, 0, len(res))
	for _, r := range res {
		if r.Similarity <= 0 {
			continue
		}
		passages = append(passages, Passage{
			ID:         r.ID,
			Title:      r.Metadata["title"],
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return passages, nil
}

// Answer returns the passages matching the query, concatenated
func (kb *KnowledgeBase) Answer(ctx context.Context, query string) (string, error) {
	passages, err := kb.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(passages) == 0 {
		return NoResults, nil
	}

	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", p.Title, p.Content)
	}
	return b.String(), nil
}
