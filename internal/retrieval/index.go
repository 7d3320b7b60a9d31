// Package retrieval implements the similarity-searchable document index
// that supplies historical context to the planner. Documents carry
// embeddings from an injected engine; when embedding fails the index
// falls back to a deterministic hashing engine so retrieval degrades to
// lexical similarity rather than failing.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"goalpilot/internal/embedding"
	"goalpilot/internal/logging"
	"goalpilot/internal/storage"

	"github.com/google/uuid"
)

// indexKey is the storage key under which the document list is persisted.
const indexKey = "retrieval/index"

// ErrValidation is returned when empty text is added.
var ErrValidation = errors.New("retrieval: empty text")

// Document is one embedded snippet.
type Document struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Meta      map[string]string `json:"meta,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Match pairs a document with its similarity score.
type Match struct {
	Doc   Document
	Score float64
}

// QueryOptions tunes a similarity query.
type QueryOptions struct {
	K        int     // top-k results; defaults to 5
	MinScore float64 // results below this score are filtered out
}

// Config bounds the index.
type Config struct {
	Capacity          int
	CacheSize         int
	CacheKeyPrefixLen int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:          512,
		CacheSize:         256,
		CacheKeyPrefixLen: 128,
	}
}

// Index is the retrieval index. The document list and embedding cache
// are private to it; all access is serialized under its lock.
type Index struct {
	mu       sync.RWMutex
	engine   embedding.Engine
	fallback embedding.Engine
	port     storage.Port
	cfg      Config
	docs     []Document
	cache    *embedCache

	// now is swappable in tests.
	now func() time.Time
}

// New creates an Index over the given port. engine may be nil, in which
// case only the deterministic fallback is used.
func New(engine embedding.Engine, port storage.Port, cfg Config) *Index {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	dims := 256
	if engine != nil {
		dims = engine.Dimensions()
	}
	return &Index{
		engine:   engine,
		fallback: embedding.NewHashEngine(dims),
		port:     port,
		cfg:      cfg,
		cache:    newEmbedCache(cfg.CacheSize, cfg.CacheKeyPrefixLen),
		now:      time.Now,
	}
}

// Add embeds text and appends a document, evicting the oldest past
// capacity. Returns ErrValidation for empty text.
func (idx *Index) Add(ctx context.Context, text string, meta map[string]string) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrValidation
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	vec := idx.embedLocked(ctx, text)

	doc := Document{
		ID:        uuid.New().String(),
		Text:      text,
		Embedding: vec,
		Meta:      meta,
		Timestamp: idx.now(),
	}
	idx.docs = append(idx.docs, doc)
	idx.evictLocked()

	logging.RetrievalDebug("indexed document %s (%d chars, %d stored)", doc.ID, len(text), len(idx.docs))
	return &doc, nil
}

// Query returns the top-k documents by cosine similarity to text,
// filtered by MinScore. An empty index yields an empty result, never an
// error.
func (idx *Index) Query(ctx context.Context, text string, opts QueryOptions) ([]Match, error) {
	if opts.K <= 0 {
		opts.K = 5
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.docs) == 0 {
		return []Match{}, nil
	}

	queryVec := idx.embedLocked(ctx, text)

	matches := make([]Match, 0, len(idx.docs))
	for _, doc := range idx.docs {
		score, err := embedding.CosineSimilarity(queryVec, doc.Embedding)
		if err != nil {
			// Dimension mismatch after an engine change; skip.
			continue
		}
		if score < opts.MinScore {
			continue
		}
		matches = append(matches, Match{Doc: doc, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > opts.K {
		matches = matches[:opts.K]
	}

	logging.RetrievalDebug("query %q: %d matches", truncate(text, 60), len(matches))
	return matches, nil
}

// ReplaceDomain atomically removes all documents tagged meta.domain ==
// domain and adds the replacements under the same tag.
func (idx *Index) ReplaceDomain(ctx context.Context, domain string, texts []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.docs[:0]
	removed := 0
	for _, doc := range idx.docs {
		if doc.Meta["domain"] == domain {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	idx.docs = kept

	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		idx.docs = append(idx.docs, Document{
			ID:        uuid.New().String(),
			Text:      text,
			Embedding: idx.embedLocked(ctx, text),
			Meta:      map[string]string{"domain": domain},
			Timestamp: idx.now(),
		})
	}
	idx.evictLocked()

	logging.Retrieval("domain %q refreshed: -%d +%d documents", domain, removed, len(texts))
	return nil
}

// Persist serializes the full document list through the storage port.
func (idx *Index) Persist(ctx context.Context) error {
	idx.mu.RLock()
	blob, err := json.Marshal(idx.docs)
	idx.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := idx.port.Set(ctx, indexKey, blob); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// Load restores the document list from the storage port. A missing blob
// leaves the index empty.
func (idx *Index) Load(ctx context.Context) error {
	blob, ok, err := idx.port.Get(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if !ok {
		return nil
	}

	var docs []Document
	if err := json.Unmarshal(blob, &docs); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}

	idx.mu.Lock()
	idx.docs = docs
	idx.evictLocked()
	idx.mu.Unlock()

	logging.Retrieval("loaded %d documents", len(docs))
	return nil
}

// Clear empties the index and persists the empty state.
func (idx *Index) Clear(ctx context.Context) error {
	idx.mu.Lock()
	idx.docs = nil
	idx.cache.clear()
	idx.mu.Unlock()
	return idx.Persist(ctx)
}

// Len returns the number of stored documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// SetClock overrides the time source. Test hook.
func (idx *Index) SetClock(now func() time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.now = now
}

// embedLocked computes (or recalls) the embedding for text. An engine
// failure falls back to the deterministic hash engine; the fallback
// never fails.
func (idx *Index) embedLocked(ctx context.Context, text string) []float32 {
	if vec, ok := idx.cache.get(text); ok {
		return vec
	}

	var vec []float32
	if idx.engine != nil {
		v, err := idx.engine.Embed(ctx, text)
		if err == nil {
			vec = v
		} else {
			logging.Get(logging.CategoryRetrieval).Warn("embedding via %s failed, using hash fallback: %v", idx.engine.Name(), err)
		}
	}
	if vec == nil {
		vec, _ = idx.fallback.Embed(ctx, text)
	}

	idx.cache.put(text, vec)
	return vec
}

// evictLocked drops the oldest documents past capacity.
func (idx *Index) evictLocked() {
	if over := len(idx.docs) - idx.cfg.Capacity; over > 0 {
		sort.SliceStable(idx.docs, func(i, j int) bool {
			return idx.docs[i].Timestamp.Before(idx.docs[j].Timestamp)
		})
		idx.docs = append([]Document(nil), idx.docs[over:]...)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
