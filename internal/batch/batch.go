// Package batch implements the request batching layer (§4.4): a
// time-and-size window that collapses duplicate per-token lookups into one
// composite RPC call, with cache-backed deduplication and an in-flight map
// coalescing concurrent waiters on the same key.
package batch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/cryptofunk/internal/cache"
	"github.com/ajitpratap0/cryptofunk/internal/errs"
	"github.com/ajitpratap0/cryptofunk/internal/rpcrouter"
)

// Kind identifies the shape of data a request asks for.
type Kind string

const (
	KindBasicInfo      Kind = "basic_info"
	KindRiskAnalysis   Kind = "risk_analysis"
	KindLiquidityCheck Kind = "liquidity_check"
	KindHolderAnalysis Kind = "holder_analysis"
	KindComprehensive  Kind = "comprehensive"
)

// Request is one pending per-token lookup (§4.4).
type Request struct {
	TokenAddress string
	Kind         Kind
	Priority     int
	RequestedAt  time.Time
}

func cacheKey(address string) string {
	return "token_analysis:" + address
}

func pendingKey(address string, kind Kind) string {
	return address + "|" + string(kind)
}

// Config controls batch emission triggers and concurrency (§6.4).
type Config struct {
	MaxBatchSize        int
	BatchTimeout         time.Duration
	CacheTTL             time.Duration
	MaxConcurrentBatches int
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize:         100,
		BatchTimeout:         2 * time.Second,
		CacheTTL:             5 * time.Minute,
		MaxConcurrentBatches: 5,
	}
}

// Composite issues one multi-account RPC call for a group of requests of the
// same Kind, returning a result keyed by token address. An address missing
// from the returned map resolves to an error for its waiter; Single is not
// called for it.
type Composite func(ctx context.Context, kind Kind, addresses []string) (map[string]json.RawMessage, error)

// Single issues one per-token RPC call, used as the fallback path when a
// composite call fails outright.
type Single func(ctx context.Context, kind Kind, address string) (json.RawMessage, error)

// waiter is shared by every caller of the same (address, kind); closing done
// releases all of them with the same res.
type waiter struct {
	done chan struct{}
	res  result
}

type result struct {
	value json.RawMessage
	err   error
}

// Aggregator batches pending requests per (request_kind) and dispatches them
// either on size or on timeout, whichever trigger fires first.
type Aggregator struct {
	log    zerolog.Logger
	cfg    Config
	cache  *cache.Cache
	router *rpcrouter.Router

	composite Composite
	single    Single

	mu          sync.Mutex
	pending     map[Kind][]Request
	oldestAt    map[Kind]time.Time
	inFlight    map[string]*waiter
	sem         chan struct{}
}

// New builds an Aggregator. composite/single are caller-supplied since their
// wire shape depends on the chain the Router is configured for.
func New(log zerolog.Logger, cfg Config, c *cache.Cache, router *rpcrouter.Router, composite Composite, single Single) *Aggregator {
	return &Aggregator{
		log:       log.With().Str("component", "batch").Logger(),
		cfg:       cfg,
		cache:     c,
		router:    router,
		composite: composite,
		single:    single,
		pending:   make(map[Kind][]Request),
		oldestAt:  make(map[Kind]time.Time),
		inFlight:  make(map[string]*waiter),
		sem:       make(chan struct{}, cfg.MaxConcurrentBatches),
	}
}

// AddRequest probes the cache first (a hit short-circuits), otherwise
// enqueues the request and blocks until its batch resolves. Concurrent
// duplicate requests for the same (address, kind) converge on one waiter.
func (a *Aggregator) AddRequest(ctx context.Context, req Request) (json.RawMessage, error) {
	key := cacheKey(req.TokenAddress)
	var cached json.RawMessage
	if found, err := a.cache.Get(ctx, key, &cached); err != nil {
		return nil, errs.Wrap(errs.KindExternal, "batch", "cache probe", err)
	} else if found {
		return cached, nil
	}

	pk := pendingKey(req.TokenAddress, req.Kind)

	a.mu.Lock()
	if w, ok := a.inFlight[pk]; ok {
		a.mu.Unlock()
		return a.wait(ctx, w)
	}

	w := &waiter{done: make(chan struct{})}
	a.inFlight[pk] = w
	a.pending[req.Kind] = append(a.pending[req.Kind], req)
	if _, ok := a.oldestAt[req.Kind]; !ok {
		a.oldestAt[req.Kind] = req.RequestedAt
	}
	shouldEmit := len(a.pending[req.Kind]) >= a.cfg.MaxBatchSize
	a.mu.Unlock()

	if shouldEmit {
		go a.emit(context.WithoutCancel(ctx), req.Kind)
	} else {
		time.AfterFunc(a.cfg.BatchTimeout, func() {
			a.emitIfOldestStillWaiting(req.Kind, req.RequestedAt)
		})
	}

	return a.wait(ctx, w)
}

func (a *Aggregator) wait(ctx context.Context, w *waiter) (json.RawMessage, error) {
	select {
	case <-w.done:
		return w.res.value, w.res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// emitIfOldestStillWaiting fires the timeout trigger only if the request
// that scheduled it is still the oldest pending entry for kind.
func (a *Aggregator) emitIfOldestStillWaiting(kind Kind, requestedAt time.Time) {
	a.mu.Lock()
	oldest, ok := a.oldestAt[kind]
	a.mu.Unlock()
	if ok && oldest.Equal(requestedAt) {
		a.emit(context.Background(), kind)
	}
}

// emit drains up to MaxBatchSize highest-priority pending requests for kind
// (tie-break by requested_at ascending), issues one composite call, falls
// back to bounded-concurrency per-token calls on composite failure, and
// populates the cache + resolves waiters (§4.4 steps 1-3).
func (a *Aggregator) emit(ctx context.Context, kind Kind) {
	a.sem <- struct{}{}
	defer func() { <-a.sem }()

	a.mu.Lock()
	batch := a.pending[kind]
	delete(a.pending, kind)
	delete(a.oldestAt, kind)
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Priority != batch[j].Priority {
			return batch[i].Priority > batch[j].Priority
		}
		return batch[i].RequestedAt.Before(batch[j].RequestedAt)
	})
	if len(batch) > a.cfg.MaxBatchSize {
		batch = batch[:a.cfg.MaxBatchSize]
	}

	addresses := make([]string, len(batch))
	for i, req := range batch {
		addresses[i] = req.TokenAddress
	}

	results, err := a.composite(ctx, kind, addresses)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", string(kind)).Msg("composite call failed, falling back to per-token calls")
		results = a.fallbackPerToken(ctx, kind, addresses)
	}

	for _, req := range batch {
		pk := pendingKey(req.TokenAddress, req.Kind)
		value, ok := results[req.TokenAddress]

		a.mu.Lock()
		w, hasWaiter := a.inFlight[pk]
		delete(a.inFlight, pk)
		a.mu.Unlock()

		var r result
		if !ok {
			r = result{err: errs.Wrap(errs.KindExternal, "batch", "no result for token", errs.ErrNoProvider)}
		} else {
			r = result{value: value}
			if err := a.cache.Set(ctx, cacheKey(req.TokenAddress), value, a.cfg.CacheTTL); err != nil {
				a.log.Warn().Err(err).Str("address", req.TokenAddress).Msg("failed to populate cache after batch emission")
			}
		}
		if hasWaiter {
			w.res = r
			close(w.done)
		}
	}
}

// fallbackPerToken issues one RPC call per address, bounded by
// MaxConcurrentBatches, when the composite call fails outright.
func (a *Aggregator) fallbackPerToken(ctx context.Context, kind Kind, addresses []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(addresses))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrentBatches)
	for _, addr := range addresses {
		addr := addr
		g.Go(func() error {
			value, err := a.single(gctx, kind, addr)
			if err != nil {
				a.log.Warn().Err(err).Str("address", addr).Msg("per-token fallback call failed")
				return nil // partial success: other tokens still proceed
			}
			mu.Lock()
			out[addr] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
