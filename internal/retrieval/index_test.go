package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"goalpilot/internal/embedding"
	"goalpilot/internal/storage"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	return New(nil, storage.NewMemoryPort(), Config{Capacity: 10})
}

func TestQueryEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	for _, q := range []string{"", "anything", "find pricing"} {
		matches, err := idx.Query(context.Background(), q, QueryOptions{K: 3})
		if err != nil {
			t.Fatalf("query %q on empty index must not error: %v", q, err)
		}
		if len(matches) != 0 {
			t.Errorf("query %q: expected empty result, got %d matches", q, len(matches))
		}
	}
}

func TestAddValidation(t *testing.T) {
	idx := newTestIndex(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := idx.Add(context.Background(), text, nil); !errors.Is(err, ErrValidation) {
			t.Errorf("Add(%q): expected ErrValidation, got %v", text, err)
		}
	}
	if idx.Len() != 0 {
		t.Errorf("rejected texts must not be stored, len=%d", idx.Len())
	}
}

func TestIdenticalTextExactMatch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	const text = "the pricing page lists three tiers"
	doc, err := idx.Add(ctx, text, nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := idx.Add(ctx, "unrelated snippet about deployment workflow", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Identical text embeds identically: the self-similarity is 1.
	vecA, _ := embedding.NewHashEngine(256).Embed(ctx, text)
	vecB, _ := embedding.NewHashEngine(256).Embed(ctx, text)
	score, err := embedding.CosineSimilarity(vecA, vecB)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if score < 0.9999 {
		t.Errorf("expected self-similarity ~1, got %f", score)
	}

	matches, err := idx.Query(ctx, text, QueryOptions{K: 5, MinScore: 0.99})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected the exact-match document")
	}
	if matches[0].Doc.ID != doc.ID {
		t.Errorf("expected exact match first, got %q", matches[0].Doc.Text)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("expected score >= 0.99, got %f", matches[0].Score)
	}
}

func TestQueryTopKAndMinScore(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	texts := []string{
		"login page accepts email and password",
		"login form rejects wrong passwords",
		"the dashboard shows usage graphs",
		"billing happens at the start of the month",
	}
	for _, text := range texts {
		if _, err := idx.Add(ctx, text, nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	matches, err := idx.Query(ctx, "login password", QueryOptions{K: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) > 2 {
		t.Errorf("expected at most k=2 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted descending: %f before %f", matches[i-1].Score, matches[i].Score)
		}
	}

	// An impossible threshold filters everything.
	matches, err = idx.Query(ctx, "login password", QueryOptions{K: 5, MinScore: 1.1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected minScore to filter all results, got %d", len(matches))
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	idx := New(nil, storage.NewMemoryPort(), Config{Capacity: 3})
	ctx := context.Background()

	now := time.Now()
	i := 0
	idx.SetClock(func() time.Time {
		i++
		return now.Add(time.Duration(i) * time.Second)
	})

	for n := 0; n < 5; n++ {
		if _, err := idx.Add(ctx, fmt.Sprintf("snippet number %d", n), nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	if idx.Len() != 3 {
		t.Fatalf("expected capacity bound of 3, got %d", idx.Len())
	}
	// The two oldest must be gone.
	matches, err := idx.Query(ctx, "snippet number 0", QueryOptions{K: 10, MinScore: 0.99})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected oldest document evicted, still found %q", matches[0].Doc.Text)
	}
}

func TestReplaceDomain(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if _, err := idx.Add(ctx, "keep me", map[string]string{"domain": "other"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := idx.Add(ctx, "stale fact one", map[string]string{"domain": "pricing"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := idx.Add(ctx, "stale fact two", map[string]string{"domain": "pricing"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := idx.ReplaceDomain(ctx, "pricing", []string{"fresh fact"}); err != nil {
		t.Fatalf("ReplaceDomain failed: %v", err)
	}

	if idx.Len() != 2 {
		t.Fatalf("expected 2 documents after replace, got %d", idx.Len())
	}
	matches, err := idx.Query(ctx, "stale fact one", QueryOptions{K: 10, MinScore: 0.99})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Error("expected stale domain documents removed")
	}
	matches, err = idx.Query(ctx, "fresh fact", QueryOptions{K: 10, MinScore: 0.99})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Doc.Meta["domain"] != "pricing" {
		t.Errorf("expected the replacement tagged with the domain, got %+v", matches)
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	port := storage.NewMemoryPort()
	ctx := context.Background()

	first := New(nil, port, Config{Capacity: 10})
	if _, err := first.Add(ctx, "survives restarts", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := first.Persist(ctx); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	second := New(nil, port, Config{Capacity: 10})
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if second.Len() != 1 {
		t.Fatalf("expected 1 document after load, got %d", second.Len())
	}
	matches, err := second.Query(ctx, "survives restarts", QueryOptions{K: 1, MinScore: 0.99})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 {
		t.Error("expected the persisted document to be queryable")
	}
}

func TestClear(t *testing.T) {
	port := storage.NewMemoryPort()
	ctx := context.Background()

	idx := New(nil, port, Config{Capacity: 10})
	if _, err := idx.Add(ctx, "ephemeral", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d", idx.Len())
	}

	// The empty state is persisted too.
	reloaded := New(nil, port, Config{Capacity: 10})
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.Len() != 0 {
		t.Errorf("expected cleared state persisted, got %d", reloaded.Len())
	}
}

func TestEmbeddingFallbackOnEngineFailure(t *testing.T) {
	idx := New(&brokenEngine{}, storage.NewMemoryPort(), Config{Capacity: 10})
	ctx := context.Background()

	doc, err := idx.Add(ctx, "degraded but indexed", nil)
	if err != nil {
		t.Fatalf("Add must fall back, not fail: %v", err)
	}
	if len(doc.Embedding) == 0 {
		t.Error("expected a pseudo-embedding from the hash fallback")
	}

	matches, err := idx.Query(ctx, "degraded but indexed", QueryOptions{K: 1, MinScore: 0.99})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 {
		t.Error("expected the fallback embedding to remain queryable")
	}
}

// brokenEngine always fails, driving the hash fallback path.
type brokenEngine struct{}

func (e *brokenEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("backend unreachable")
}

func (e *brokenEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("backend unreachable")
}

func (e *brokenEngine) Dimensions() int { return 256 }
func (e *brokenEngine) Name() string    { return "broken" }
