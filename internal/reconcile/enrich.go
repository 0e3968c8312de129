package reconcile

import (
	"context"
	"time"

	appLog "calrecon/internal/log"
	"calrecon/internal/model"
	"calrecon/internal/summary"
)

const (
	DefaultSummaryTTL     = time.Hour
	DefaultSummaryTimeout = 10 * time.Second
)

// Cache is the key/value store used to remember generated summaries.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
}

// Generator turns a prompt into text. It may fail for any reason.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Enricher attaches a one-line synopsis to merged events. It never fails:
// any generation problem yields the deterministic fallback sentence.
type Enricher struct {
	gen     Generator
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithSummaryTTL sets how long summaries stay cached.
func WithSummaryTTL(d time.Duration) EnricherOption {
	return func(e *Enricher) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithGenerateTimeout bounds a single generator call.
func WithGenerateTimeout(d time.Duration) EnricherOption {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEnricher creates an Enricher. gen may be nil, in which case every
// summary is the fallback sentence. cache must not be nil.
func NewEnricher(gen Generator, cache Cache, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		gen:     gen,
		cache:   cache,
		ttl:     DefaultSummaryTTL,
		timeout: DefaultSummaryTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func summaryCacheKey(eventID string) string {
	return "event:summary:" + eventID
}

// Enrich sets AISummary on every event in merged that absorbed at least one
// other event. snapshot is the pre-merge event set used to resolve the
// titles of the sources listed in MergedFrom.
func (en *Enricher) Enrich(ctx context.Context, merged []model.Event, snapshot []model.Event) {
	byID := make(map[string]model.Event, len(snapshot))
	for _, e := range snapshot {
		byID[e.ID] = e
	}

	for i := range merged {
		if len(merged[i].MergedFrom) < 2 {
			continue
		}
		req := summary.Request{MergedTitle: merged[i].Title}
		for _, id := range merged[i].MergedFrom {
			if src, ok := byID[id]; ok {
				req.Sources = append(req.Sources, summary.Source{ID: src.ID, Title: src.Title})
			}
		}
		// Nothing new was absorbed this pass; keep the summary from the
		// pass that did the merging. This bypasses the cache-first lookup
		// below, so neither the cache nor the generator is consulted.
		if len(req.Sources) < 2 && merged[i].AISummary != "" {
			continue
		}
		merged[i].AISummary = en.Summarize(ctx, merged[i].ID, req)
	}
}

// Summarize returns the cached summary for survivorID, or generates one,
// caches it and returns it.
func (en *Enricher) Summarize(ctx context.Context, survivorID string, req summary.Request) string {
	key := summaryCacheKey(survivorID)
	if cached, ok := en.cache.Get(key); ok && cached != "" {
		appLog.Debug("summary cache hit", "event_id", survivorID)
		return cached
	}

	text := en.generate(ctx, survivorID, req)
	en.cache.Set(key, text, en.ttl)
	return text
}

func (en *Enricher) generate(ctx context.Context, survivorID string, req summary.Request) string {
	if en.gen == nil {
		return summary.Fallback(req)
	}

	ctx, cancel := context.WithTimeout(ctx, en.timeout)
	defer cancel()

	text, err := en.gen.Generate(ctx, summary.Prompt(req))
	if err != nil {
		appLog.Error("summary generation failed; using fallback", err, "event_id", survivorID, "sources", req.Count())
		return summary.Fallback(req)
	}
	if text == "" {
		return summary.Fallback(req)
	}
	return text
}
