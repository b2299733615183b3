package context

import (
	stdcontext "context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
	"github.com/ajitpratap0/cryptofunk/internal/feedback"
)

// Embedder computes a query embedding via an external capability (an MCP
// tool call in production — opaque per spec.md §1).
type Embedder interface {
	Embed(ctx stdcontext.Context, text string) ([]float32, error)
}

const (
	defaultMaxContextSize = 4000
	defaultSearchLimit    = 20
	defaultThreshold      = 0.0
)

// Engine is the Context Engine (§4.10).
type Engine struct {
	log      zerolog.Logger
	store    *feedback.Store
	loop     *feedback.FeedbackLoop
	embedder Embedder
	cache    *responseCache
	state    *stateMachine
}

// New creates an Engine. embedder may be nil, in which case retrieval falls
// back to recency-ordered category search (no embedding available).
func New(log zerolog.Logger, store *feedback.Store, loop *feedback.FeedbackLoop, embedder Embedder) *Engine {
	e := &Engine{
		log:      log.With().Str("component", "context_engine").Logger(),
		store:    store,
		loop:     loop,
		embedder: embedder,
		cache:    newResponseCache(),
		state:    newStateMachine(),
	}
	e.state.activate()
	return e
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State { return e.state.get() }

// Process implements process(request) -> {optimized_context, quality_score,
// relevance_score, patterns_used, sources} (§4.10).
func (e *Engine) Process(ctx stdcontext.Context, req Request) (Response, error) {
	started := time.Now()
	if req.MaxContextSize <= 0 {
		req.MaxContextSize = defaultMaxContextSize
	}

	if cached, ok := e.cache.get(req.cacheKey()); ok {
		return cached, nil
	}

	if e.state.get() != StateActive {
		return Response{}, errs.New(errs.KindCapacity, "context", "engine not active, retry")
	}

	e.state.set(StateOptimizing)
	defer e.state.activate()

	embedding, err := e.embed(ctx, req.Query)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindExternal, "context", "compute query embedding", err)
	}

	fragments := e.retrieve(ctx, req, embedding)
	patterns := e.recognizePatterns(req)
	optimized, sources := optimizeFragments(fragments, req.MaxContextSize)

	quality := scoreQuality(fragments, optimized)
	relevance := scoreRelevance(embedding, fragments)

	resp := Response{
		OptimizedContext: optimized,
		QualityScore:     quality,
		RelevanceScore:   relevance,
		PatternsUsed:     patterns,
		Sources:          sources,
		ProcessingTime:   time.Since(started),
	}
	e.cache.put(req.cacheKey(), resp)
	return resp, nil
}

func (e *Engine) embed(ctx stdcontext.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, nil
	}
	return e.embedder.Embed(ctx, text)
}

// retrieve performs step (2): semantic search over LongTerm memory under the
// request's category, honoring the default search limit.
func (e *Engine) retrieve(ctx stdcontext.Context, req Request, embedding []float32) []Fragment {
	if e.store == nil {
		return nil
	}
	entries, err := e.store.SearchLongTerm(ctx, string(req.Kind), embedding, defaultSearchLimit)
	if err != nil {
		e.log.Warn().Err(err).Msg("long-term search failed, continuing with no fragments")
		return nil
	}

	fragments := make([]Fragment, 0, len(entries))
	for _, entry := range entries {
		text, ok := entry.Content.(string)
		if !ok {
			continue
		}
		fragments = append(fragments, Fragment{
			Text:      text,
			CreatedAt: entry.CreatedAt,
			Source: Source{
				Kind:       SourceLongTermMemory,
				ID:         entry.ID,
				Weight:     entry.Importance,
				Confidence: entry.Importance,
			},
		})
	}
	return fragments
}

// recognizePatterns implements step (3): surface patterns relevant to the
// request's kind from the feedback loop.
func (e *Engine) recognizePatterns(req Request) []feedback.DetectedPattern {
	if e.loop == nil {
		return nil
	}
	all := e.loop.Patterns()
	matched := make([]feedback.DetectedPattern, 0, len(all))
	for _, p := range all {
		if strings.Contains(p.Description, string(req.Kind)) || len(all) <= 3 {
			matched = append(matched, p)
		}
	}
	return matched
}

// optimizeFragments implements step (4): dedup, rank by weight, truncate to
// maxSize characters.
func optimizeFragments(fragments []Fragment, maxSize int) (string, []Source) {
	seen := make(map[string]bool)
	deduped := make([]Fragment, 0, len(fragments))
	for _, f := range fragments {
		if seen[f.Text] {
			continue
		}
		seen[f.Text] = true
		deduped = append(deduped, f)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Source.Weight > deduped[j].Source.Weight
	})

	var b strings.Builder
	sources := make([]Source, 0, len(deduped))
	for _, f := range deduped {
		if b.Len()+len(f.Text)+1 > maxSize {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Text)
		sources = append(sources, f.Source)
	}
	return b.String(), sources
}

// scoreQuality blends coverage (fraction of fragments retained) with
// freshness (how recently the surviving fragments were created).
func scoreQuality(all []Fragment, optimized string) float64 {
	if len(all) == 0 {
		return 0
	}
	retained := 0
	for _, f := range all {
		if strings.Contains(optimized, f.Text) {
			retained++
		}
	}
	coverage := float64(retained) / float64(len(all))

	freshness := 0.0
	now := time.Now()
	for _, f := range all {
		age := now.Sub(f.CreatedAt).Hours() / 24
		freshness += 1.0 / (1.0 + age/30.0)
	}
	freshness /= float64(len(all))

	return clamp01(0.5*coverage + 0.5*freshness)
}

// scoreRelevance returns the mean Source.Confidence of the retrieved
// fragments when a query embedding is present; it does not compute a cosine
// similarity, and the embedding's values are not read. Without an embedding
// it scores by fragment count relative to defaultSearchLimit.
func scoreRelevance(embedding []float32, fragments []Fragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	if embedding == nil {
		return clamp01(float64(len(fragments)) / float64(defaultSearchLimit))
	}
	sum := 0.0
	for _, f := range fragments {
		sum += f.Source.Confidence
	}
	return clamp01(sum / float64(len(fragments)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
