// Command ingress runs the §6.1 webhook: it receives chain-event payloads
// from an off-chain indexer, authenticates and rate-limits them, and
// forwards accepted batches to the Decision API (§6.2) hosted by
// cmd/orchestrator. It never talks to the database or any domain package
// directly — its only job is to be the thin, cheap-to-scale edge in front
// of the orchestrator.
package main

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/cryptofunk/internal/config"
)

// chainEvent is one element of the §6.1 webhook body.
type chainEvent struct {
	AccountData      []json.RawMessage `json:"account_data"`
	TokenTransfers   []json.RawMessage `json:"token_transfers"`
	NativeTransfers  []json.RawMessage `json:"native_transfers"`
	Instructions     []json.RawMessage `json:"instructions"`
	Transaction      eventTransaction  `json:"transaction"`
}

type eventTransaction struct {
	Signature string  `json:"signature"`
	Timestamp int64   `json:"timestamp"`
	Slot      *uint64 `json:"slot,omitempty"`
	Fee       *uint64 `json:"fee,omitempty"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("starting cryptofunk ingress")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.API.IngressToken == "" {
		log.Warn().Msg("api.ingress_token is empty, every webhook request will be rejected")
	}

	rpm := cfg.API.IngressRPM
	if rpm <= 0 {
		rpm = 600
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"POST"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	forwarder := newForwarder(cfg.API.OrchestratorURL)
	limiter := newIPRateLimiter(rpm)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.POST("/webhook", bearerAuth(cfg.API.IngressToken), limiter.middleware(), handleWebhook(forwarder))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.IngressPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go limiter.runEviction(10 * time.Minute)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("ingress listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("ingress server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during ingress shutdown")
	}
	log.Info().Msg("ingress shutdown complete")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("ingress request")
	}
}

// bearerAuth validates Authorization: Bearer <token> by constant-time
// comparison, per §6.1.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		presented := strings.TrimPrefix(header, prefix)
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ipRateLimiter holds one sliding-minute token-bucket limiter per client IP,
// per §6.1's default 600 req/min.
type ipRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastSeen  map[string]time.Time
	perMinute int
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		lastSeen:  make(map[string]time.Time),
		perMinute: perMinute,
	}
}

func (rl *ipRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastSeen[ip] = time.Now()
	if l, ok := rl.limiters[ip]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rl.perMinute)/60.0, rl.perMinute)
	rl.limiters[ip] = l
	return l
}

// runEviction drops limiters for IPs that have been idle longer than
// maxIdle, so the map doesn't grow unbounded under a rotating client set.
func (rl *ipRateLimiter) runEviction(maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-maxIdle)
		rl.mu.Lock()
		for ip, seen := range rl.lastSeen {
			if seen.Before(cutoff) {
				delete(rl.limiters, ip)
				delete(rl.lastSeen, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.get(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "retry_after_s": 60})
			c.Abort()
			return
		}
		c.Next()
	}
}

// forwarder relays accepted webhook events to the Decision API.
type forwarder struct {
	client *http.Client
	url    string
}

func newForwarder(orchestratorURL string) *forwarder {
	url := strings.TrimRight(orchestratorURL, "/")
	if url == "" {
		url = "http://localhost:8080"
	}
	return &forwarder{
		client: &http.Client{Timeout: 20 * time.Second},
		url:    url + "/analyze/tokens",
	}
}

func (f *forwarder) forward(events []chainEvent) error {
	body, err := json.Marshal(analyzeTokensPayload(events))
	if err != nil {
		return fmt.Errorf("encode decision api payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("decision api returned status %d", resp.StatusCode)
	}
	return nil
}

// analyzeTokensPayload extracts a minimal token profile per event for the
// Decision API. Full instruction/transfer parsing into a TokenCandidate's
// on-chain features is deliberately out of scope for the ingress layer: it
// forwards raw_event_ref and lets downstream enrichment fill the rest.
func analyzeTokensPayload(events []chainEvent) gin.H {
	profiles := make([]gin.H, 0, len(events))
	for _, e := range events {
		profiles = append(profiles, gin.H{
			"address":        e.Transaction.Signature,
			"raw_event_ref":  e.Transaction.Signature,
			"created_at":     time.Unix(e.Transaction.Timestamp, 0).UTC(),
		})
	}
	return gin.H{
		"token_profiles": profiles,
		"source":         "ingress_webhook",
		"timestamp":      time.Now().UTC(),
	}
}

func handleWebhook(f *forwarder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var events []chainEvent
		if err := c.ShouldBindJSON(&events); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed webhook body", "detail": err.Error()})
			return
		}
		if len(events) == 0 {
			c.JSON(http.StatusOK, gin.H{"status": "accepted", "events": 0})
			return
		}

		if err := f.forward(events); err != nil {
			log.Error().Err(err).Int("events", len(events)).Msg("forward to decision api failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "downstream decision api unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "accepted", "events": len(events)})
	}
}
