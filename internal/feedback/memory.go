// Package feedback implements the three-tier memory store and the feedback
// loop that updates rolling signal/agent statistics and derives patterns
// from realized outcomes (§4.9).
package feedback

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// Tier is a memory entry's retention class (§3).
type Tier string

const (
	TierWorking   Tier = "working"
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
)

func ttlFor(tier Tier, longTermRetention time.Duration) time.Duration {
	switch tier {
	case TierWorking:
		return 5 * time.Minute
	case TierShortTerm:
		return 24 * time.Hour
	default:
		return longTermRetention
	}
}

// Entry is a MemoryEntry (§3).
type Entry struct {
	ID           string
	Tier         Tier
	Category     string
	Key          string
	Content      any
	Embedding    []float32
	Importance   float64
	AccessCount  int
	LastAccessed time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (e Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// boostImportance applies a logarithmic access-frequency boost (§3).
func boostImportance(importance float64, accessCount int) float64 {
	boosted := importance + math.Log1p(float64(accessCount))*0.05
	if boosted > 1.0 {
		return 1.0
	}
	return boosted
}

// VectorStore performs similarity search over LongTerm entries carrying an
// embedding, backed by pgvector in production.
type VectorStore interface {
	Search(ctx context.Context, category string, embedding []float32, limit int) ([]Entry, error)
	Upsert(ctx context.Context, entry Entry) error
}

const defaultWorkingCapacity = 500

// Store is the three-tier memory store. Working/ShortTerm live in-process;
// LongTerm entries with an embedding are additionally indexed by a
// VectorStore for semantic queries.
type Store struct {
	mu                sync.Mutex
	working           map[string]*Entry
	shortTerm         map[string]*Entry
	longTerm          map[string]*Entry
	workingOrder      []string // insertion order, for size-bounded eviction
	longTermRetention time.Duration
	workingCapacity   int
	vector            VectorStore
}

// NewStore creates a Store. vector may be nil to disable semantic search
// (LongTerm entries are then retrievable only by category+key).
func NewStore(longTermRetention time.Duration, vector VectorStore) *Store {
	if longTermRetention <= 0 {
		longTermRetention = 90 * 24 * time.Hour
	}
	return &Store{
		working:           make(map[string]*Entry),
		shortTerm:         make(map[string]*Entry),
		longTerm:          make(map[string]*Entry),
		longTermRetention: longTermRetention,
		workingCapacity:   defaultWorkingCapacity,
		vector:            vector,
	}
}

func entryKey(category, key string) string { return category + "|" + key }

// Put stores content under (tier, category, key), creating or overwriting
// the entry and stamping created_at/expires_at from tier.
func (s *Store) Put(ctx context.Context, tier Tier, category, key string, content any, embedding []float32, importance float64) (*Entry, error) {
	now := time.Now()
	e := &Entry{
		ID:           uuid.NewString(),
		Tier:         tier,
		Category:     category,
		Key:          key,
		Content:      content,
		Embedding:    embedding,
		Importance:   importance,
		LastAccessed: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttlFor(tier, s.longTermRetention)),
	}

	s.mu.Lock()
	switch tier {
	case TierWorking:
		k := entryKey(category, key)
		if _, exists := s.working[k]; !exists {
			s.workingOrder = append(s.workingOrder, k)
		}
		s.working[k] = e
		s.evictWorkingLocked()
	case TierShortTerm:
		s.shortTerm[entryKey(category, key)] = e
	default:
		s.longTerm[entryKey(category, key)] = e
	}
	s.mu.Unlock()

	if tier == TierLongTerm && embedding != nil && s.vector != nil {
		if err := s.vector.Upsert(ctx, *e); err != nil {
			return e, errs.Wrap(errs.KindExternal, "feedback", "vector upsert", err)
		}
	}
	return e, nil
}

// evictWorkingLocked drops the oldest Working entries once over capacity;
// must be called with s.mu held.
func (s *Store) evictWorkingLocked() {
	for len(s.working) > s.workingCapacity {
		oldestKey := s.workingOrder[0]
		s.workingOrder = s.workingOrder[1:]
		delete(s.working, oldestKey)
	}
}

// Get looks up an entry by (tier, category, key). A hit bumps access_count
// and last_accessed and boosts importance logarithmically (§3).
func (s *Store) Get(tier Tier, category, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tbl map[string]*Entry
	switch tier {
	case TierWorking:
		tbl = s.working
	case TierShortTerm:
		tbl = s.shortTerm
	default:
		tbl = s.longTerm
	}

	e, ok := tbl[entryKey(category, key)]
	if !ok || e.expired(time.Now()) {
		return Entry{}, false
	}
	e.AccessCount++
	e.LastAccessed = time.Now()
	e.Importance = boostImportance(e.Importance, e.AccessCount)
	return *e, true
}

// SearchLongTerm performs a vector similarity query over LongTerm entries in
// category, falling back to recency-ordered entries if no VectorStore or
// embedding is configured.
func (s *Store) SearchLongTerm(ctx context.Context, category string, embedding []float32, limit int) ([]Entry, error) {
	if s.vector != nil && embedding != nil {
		results, err := s.vector.Search(ctx, category, embedding, limit)
		if err != nil {
			return nil, errs.Wrap(errs.KindExternal, "feedback", "vector search", err)
		}
		return results, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var matches []Entry
	for _, e := range s.longTerm {
		if e.Category == category && !e.expired(now) {
			matches = append(matches, *e)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// PurgeExpired removes expired entries from the in-process tiers.
func (s *Store) PurgeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.shortTerm {
		if e.expired(now) {
			delete(s.shortTerm, k)
		}
	}
	for k, e := range s.longTerm {
		if e.expired(now) {
			delete(s.longTerm, k)
		}
	}
	var kept []string
	for _, k := range s.workingOrder {
		if e, ok := s.working[k]; ok {
			if e.expired(now) {
				delete(s.working, k)
				continue
			}
			kept = append(kept, k)
		}
	}
	s.workingOrder = kept
}
