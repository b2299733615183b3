// Package context implements the Context Engine (§4.10): semantic retrieval
// over the feedback loop's LongTerm memory, optimization, and quality/
// relevance scoring, gated by an internal state machine.
package context

import (
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/feedback"
)

// Kind is the context request's domain (ContextType in the Rust original).
type Kind string

const (
	KindTokenAnalysis   Kind = "token_analysis"
	KindTradingDecision Kind = "trading_decision"
	KindRiskAssessment  Kind = "risk_assessment"
	KindSentiment       Kind = "sentiment_analysis"
	KindGeneral         Kind = "general"
)

// Request is a ContextRequest.
type Request struct {
	Query           string
	Kind            Kind
	MaxContextSize  int
	RequiredQuality float64
}

func (r Request) cacheKey() string {
	return string(r.Kind) + "|" + r.Query + "|" + itoa(r.MaxContextSize)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// SourceKind identifies where a context fragment came from.
type SourceKind string

const (
	SourceShortTermMemory   SourceKind = "short_term_memory"
	SourceLongTermMemory    SourceKind = "long_term_memory"
	SourceHistoricalPattern SourceKind = "historical_pattern"
)

// Source attributes one fragment of optimized_context.
type Source struct {
	Kind       SourceKind
	ID         string
	Weight     float64
	Confidence float64
}

// Fragment is a single piece of retrieved, not-yet-optimized context.
type Fragment struct {
	Text      string
	Source    Source
	CreatedAt time.Time
}

// Response is process(request)'s result.
type Response struct {
	OptimizedContext string
	QualityScore     float64
	RelevanceScore   float64
	PatternsUsed     []feedback.DetectedPattern
	Sources          []Source
	ProcessingTime   time.Duration
}
