package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"calrecon/internal/model"
	"calrecon/internal/summary"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (c *memCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
	block   bool
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

func TestEnrichOnlyMergedEvents(t *testing.T) {
	snapshot := fiveEvents()
	merged, _ := Merge(snapshot)
	merged = append(merged, ev("solo", "Solo", "20:00", "21:00"))

	gen := &fakeGenerator{reply: "Two meetings merged."}
	NewEnricher(gen, newMemCache()).Enrich(context.Background(), merged, snapshot)

	if merged[0].AISummary != "Two meetings merged." || merged[1].AISummary != "Two meetings merged." {
		t.Fatalf("merged events should be summarized: %q / %q", merged[0].AISummary, merged[1].AISummary)
	}
	if merged[2].AISummary != "" {
		t.Fatalf("unmerged event should have no summary, got %q", merged[2].AISummary)
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.calls)
	}
	if !strings.Contains(gen.prompts[0], "Source event titles: Event 1 + Event 2 + Event 3") {
		t.Fatalf("prompt should list sources in fold order:\n%s", gen.prompts[0])
	}
	if !strings.Contains(gen.prompts[0], "Number of source events: 3") {
		t.Fatalf("prompt should count sources:\n%s", gen.prompts[0])
	}
}

func TestEnrichCachesByKeyAndTTL(t *testing.T) {
	snapshot := fiveEvents()
	merged, _ := Merge(snapshot)
	cache := newMemCache()
	gen := &fakeGenerator{reply: "Summary."}

	NewEnricher(gen, cache, WithSummaryTTL(2*time.Hour)).Enrich(context.Background(), merged, snapshot)

	if v, ok := cache.Get("event:summary:e1"); !ok || v != "Summary." {
		t.Fatalf("cache[e1] = %q,%v", v, ok)
	}
	if cache.ttls["event:summary:e4"] != 2*time.Hour {
		t.Fatalf("ttl = %s, want 2h", cache.ttls["event:summary:e4"])
	}
}

func TestEnrichIsCacheIdempotent(t *testing.T) {
	snapshot := fiveEvents()
	cache := newMemCache()
	gen := &fakeGenerator{reply: "Summary."}
	en := NewEnricher(gen, cache)

	first, _ := Merge(snapshot)
	en.Enrich(context.Background(), first, snapshot)
	second, _ := Merge(snapshot)
	en.Enrich(context.Background(), second, snapshot)

	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2 (one per survivor)", gen.calls)
	}
	for i := range first {
		if first[i].AISummary != second[i].AISummary {
			t.Fatalf("summary %d changed: %q -> %q", i, first[i].AISummary, second[i].AISummary)
		}
	}
}

func TestEnrichCacheHitSkipsGeneration(t *testing.T) {
	cache := newMemCache()
	cache.Set("event:summary:e1", "From cache.", time.Hour)
	gen := &fakeGenerator{reply: "Fresh."}

	snapshot := fiveEvents()[:3]
	merged, _ := Merge(snapshot)
	NewEnricher(gen, cache).Enrich(context.Background(), merged, snapshot)

	if merged[0].AISummary != "From cache." {
		t.Fatalf("summary = %q", merged[0].AISummary)
	}
	if gen.calls != 0 {
		t.Fatalf("generator should not be called on hit, calls = %d", gen.calls)
	}
}

func TestEnrichFallbackOnError(t *testing.T) {
	snapshot := fiveEvents()[3:]
	merged, _ := Merge(snapshot)
	cache := newMemCache()
	gen := &fakeGenerator{err: errors.New("provider down")}

	NewEnricher(gen, cache).Enrich(context.Background(), merged, snapshot)

	want := "Merged 2 overlapping events: Event 4 + Event 5."
	if merged[0].AISummary != want {
		t.Fatalf("summary = %q, want %q", merged[0].AISummary, want)
	}
	if v, _ := cache.Get("event:summary:e4"); v != want {
		t.Fatalf("fallback should be cached, got %q", v)
	}
}

func TestEnrichFallbackOnEmptyReply(t *testing.T) {
	snapshot := fiveEvents()[3:]
	merged, _ := Merge(snapshot)

	NewEnricher(&fakeGenerator{reply: ""}, newMemCache()).Enrich(context.Background(), merged, snapshot)

	if merged[0].AISummary != "Merged 2 overlapping events: Event 4 + Event 5." {
		t.Fatalf("summary = %q", merged[0].AISummary)
	}
}

func TestEnrichFallbackOnTimeout(t *testing.T) {
	snapshot := fiveEvents()[3:]
	merged, _ := Merge(snapshot)
	gen := &fakeGenerator{block: true}

	start := time.Now()
	NewEnricher(gen, newMemCache(), WithGenerateTimeout(10*time.Millisecond)).Enrich(context.Background(), merged, snapshot)

	if time.Since(start) > 2*time.Second {
		t.Fatal("enrichment did not honor its timeout")
	}
	if merged[0].AISummary != "Merged 2 overlapping events: Event 4 + Event 5." {
		t.Fatalf("summary = %q", merged[0].AISummary)
	}
}

func TestEnrichWithoutGenerator(t *testing.T) {
	snapshot := fiveEvents()[:3]
	merged, _ := Merge(snapshot)

	NewEnricher(nil, newMemCache()).Enrich(context.Background(), merged, snapshot)

	want := summary.Fallback(summary.Request{Sources: []summary.Source{
		{ID: "e1", Title: "Event 1"}, {ID: "e2", Title: "Event 2"}, {ID: "e3", Title: "Event 3"},
	}})
	if merged[0].AISummary != want {
		t.Fatalf("summary = %q, want %q", merged[0].AISummary, want)
	}
}

func TestEnrichKeepsSummaryWhenNothingNewAbsorbed(t *testing.T) {
	first, _ := Merge(fiveEvents()[:3])
	first[0].AISummary = "Earlier summary."

	// Second pass: the absorbed events are gone, only the survivor is left.
	snapshot := []model.Event{first[0]}
	merged, _ := Merge(snapshot)
	gen := &fakeGenerator{reply: "Fresh."}
	c := newMemCache()
	c.Set(summaryCacheKey(merged[0].ID), "Cached.", time.Hour)
	NewEnricher(gen, c).Enrich(context.Background(), merged, snapshot)

	if merged[0].AISummary != "Earlier summary." {
		t.Fatalf("summary = %q", merged[0].AISummary)
	}
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", gen.calls)
	}
}
