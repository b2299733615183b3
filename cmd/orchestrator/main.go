package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/api"
	"github.com/ajitpratap0/cryptofunk/internal/batch"
	"github.com/ajitpratap0/cryptofunk/internal/cache"
	"github.com/ajitpratap0/cryptofunk/internal/config"
	ctxengine "github.com/ajitpratap0/cryptofunk/internal/context"
	"github.com/ajitpratap0/cryptofunk/internal/db"
	"github.com/ajitpratap0/cryptofunk/internal/ensemble"
	"github.com/ajitpratap0/cryptofunk/internal/feedback"
	"github.com/ajitpratap0/cryptofunk/internal/hsm"
	"github.com/ajitpratap0/cryptofunk/internal/messaging"
	"github.com/ajitpratap0/cryptofunk/internal/multisig"
	"github.com/ajitpratap0/cryptofunk/internal/orchestrator"
	"github.com/ajitpratap0/cryptofunk/internal/registry"
	"github.com/ajitpratap0/cryptofunk/internal/rpcrouter"
	"github.com/ajitpratap0/cryptofunk/internal/signal"
	"github.com/ajitpratap0/cryptofunk/internal/tasks"
)

// natsStreamer adapts a *nats.Conn to messaging.Streamer.
type natsStreamer struct{ nc *nats.Conn }

func (n natsStreamer) Publish(subject string, payload []byte) error {
	return n.nc.Publish(subject, payload)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("starting cryptofunk orchestrator")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, continuing without persisted state")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.GetRedisAddr(), DB: cfg.Redis.DB, Password: cfg.Redis.Password})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, cache will run L1-only")
		redisClient = nil
	}

	var streamer messaging.Streamer
	if cfg.NATS.URL != "" {
		if nc, err := nats.Connect(cfg.NATS.URL); err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, message bus will run in-process only")
		} else {
			streamer = natsStreamer{nc: nc}
			defer nc.Close()
		}
	}

	coord := buildCoordinator(cfg, database, redisClient, streamer)

	server := api.NewServer(api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		DB:           database,
		Orchestrator: coord,
		Registry:     coord.Registry,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	done := make(chan struct{})
	go coord.Registry.RunSweepLoop(done)
	go coord.Delegator.RunSweepLoop(5*time.Second, done)
	go coord.Cache.RunMaintenance(ctx, time.Minute)
	if database != nil {
		go runQuotaSnapshotLoop(ctx, database, coord.Router, done)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("orchestrator API server error")
	}

	close(done)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during API server shutdown")
	}
	if database != nil {
		database.Close()
	}
	log.Info().Msg("orchestrator shutdown complete")
}

// runQuotaSnapshotLoop periodically persists the router's monthly quota
// counters so a restart doesn't hand every provider a free month (§6.5).
func runQuotaSnapshotLoop(ctx context.Context, database *db.DB, router *rpcrouter.Router, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := database.SaveRPCQuotas(ctx, router); err != nil {
				log.Warn().Err(err).Msg("failed to persist rpc quota counters")
			}
		case <-done:
			return
		}
	}
}

// buildCoordinator wires every component package (§4) into a single
// orchestrator.Coordinator from the loaded configuration.
func buildCoordinator(cfg *config.Config, database *db.DB, redisClient *redis.Client, streamer messaging.Streamer) *orchestrator.Coordinator {
	zlog := log.Logger

	scorer := signal.NewScorer(zlog, signal.FilterThresholds{
		MinVolumeUSD:    cfg.Signal.MinVolumeUSD,
		MinLiquidityUSD: cfg.Signal.MinLiquidityUSD,
		MaxRiskScore:    cfg.Signal.MaxRiskScore,
		MinOpportunity:  cfg.Signal.MinOpportunityScore,
		TopSignalsCount: cfg.Signal.TopSignalsCount,
	}, cfg.Signal.Weights)
	weighter := signal.NewWeighter()
	combiner := ensemble.New(zlog, 0.7, 0.75)

	multisigTTL := time.Duration(cfg.Multisig.TTLDefaultHours) * time.Hour
	coord := orchestrator.New(zlog, scorer, weighter, combiner, multisigTTL)

	coord.Registry = registry.New(zlog, 10*time.Second, 30*time.Second)
	coord.Delegator = tasks.New(zlog, coord.Registry)
	coord.Bus = messaging.New(zlog, streamer)

	coord.Router = buildRouter(zlog, cfg)
	if database != nil {
		if err := database.RestoreRPCQuotas(context.Background(), coord.Router); err != nil {
			zlog.Warn().Err(err).Msg("failed to restore persisted RPC quota counters")
		}
	}

	dbPool := databasePool(database)
	coord.Cache = cache.New(zlog, cache.Config{
		HotTTL:       cfg.Cache.HotTTL,
		WarmTTL:      cfg.Cache.WarmTTL,
		ColdTTL:      cfg.Cache.ColdTTL,
		MaxSizeBytes: cfg.Cache.MaxSizeByte,
		L1Fraction:   cfg.Cache.L1Fraction,
	}, redisClient, dbPool)

	coord.Batch = batch.New(zlog, batch.Config{
		MaxBatchSize:         cfg.Batch.MaxBatchSize,
		BatchTimeout:         cfg.Batch.BatchTimeout,
		CacheTTL:             cfg.Batch.CacheTTL,
		MaxConcurrentBatches: cfg.Batch.MaxConcurrentBatches,
	}, coord.Cache, coord.Router, compositeCaller(coord.Router), singleCaller(coord.Router))

	hsmBackend := hsm.NewSoftHSM()
	coord.HSM = hsm.New(zlog, hsmBackend)

	threshold := multisig.Threshold{K: cfg.Multisig.K, N: cfg.Multisig.N, Weighted: cfg.Multisig.Weighted}
	coord.Multisig = multisig.New(zlog, coord.HSM, routerSubmitter{coord.Router}, threshold)

	var vectorStore feedback.VectorStore
	if dbPool != nil {
		vectorStore = feedback.NewPgVectorStore(dbPool)
	}
	store := feedback.NewStore(30*24*time.Hour, vectorStore)
	coord.FeedbackStore = store
	coord.FeedbackLoop = feedback.New(zlog, store)
	coord.ContextEngine = newContextEngine(zlog, store, coord.FeedbackLoop)

	return coord
}

// databasePool extracts the pgx pool backing database, or nil when the
// database connection failed at startup and the process is running in
// degraded mode.
func databasePool(database *db.DB) *pgxpool.Pool {
	if database == nil {
		return nil
	}
	return database.Pool()
}

// rpcMethodFor maps a batch request kind to the Solana RPC method it is
// grounded on. Comprehensive requests require FeatureEnhancedData and are
// served by whichever configured provider advertises it.
func rpcMethodFor(kind batch.Kind) string {
	switch kind {
	case batch.KindBasicInfo:
		return "getAccountInfo"
	case batch.KindRiskAnalysis:
		return "getTokenSupply"
	case batch.KindLiquidityCheck:
		return "getTokenAccountsByOwner"
	case batch.KindHolderAnalysis:
		return "getProgramAccounts"
	default:
		return "getMultipleAccounts"
	}
}

func requiredFeatureFor(kind batch.Kind) rpcrouter.Feature {
	if kind == batch.KindComprehensive {
		return rpcrouter.FeatureEnhancedData
	}
	return 0
}

// compositeCaller issues one RPC call covering every address and expects the
// provider to return a same-order JSON array of per-address results.
func compositeCaller(r *rpcrouter.Router) batch.Composite {
	return func(ctx context.Context, kind batch.Kind, addresses []string) (map[string]json.RawMessage, error) {
		raw, err := r.Call(ctx, rpcMethodFor(kind), addresses, requiredFeatureFor(kind))
		if err != nil {
			return nil, err
		}
		var results []json.RawMessage
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("decode composite response: %w", err)
		}
		out := make(map[string]json.RawMessage, len(addresses))
		for i, addr := range addresses {
			if i < len(results) {
				out[addr] = results[i]
			}
		}
		return out, nil
	}
}

// singleCaller issues one RPC call per address, used by the aggregator when
// the composite call for a batch fails.
func singleCaller(r *rpcrouter.Router) batch.Single {
	return func(ctx context.Context, kind batch.Kind, address string) (json.RawMessage, error) {
		return r.Call(ctx, rpcMethodFor(kind), []string{address}, requiredFeatureFor(kind))
	}
}

// routerSubmitter adapts *rpcrouter.Router to multisig.Submitter so an
// executed gate can broadcast its transaction through the same
// quota-aware, failover-capable router used for read-side RPC calls.
type routerSubmitter struct {
	router *rpcrouter.Router
}

func (s routerSubmitter) Call(ctx context.Context, method string, params any, required rpcrouter.Feature) (any, error) {
	return s.router.Call(ctx, method, params, required)
}

// newContextEngine wires the long-term memory store and feedback loop into
// an Engine. No embedding provider is configured for this deployment, so
// memory search falls back to recency ordering (documented on Engine).
func newContextEngine(zlog zerolog.Logger, store *feedback.Store, loop *feedback.FeedbackLoop) *ctxengine.Engine {
	return ctxengine.New(zlog, store, loop, nil)
}

// httpCaller implements rpcrouter.Caller over a plain JSON-RPC 2.0 POST,
// the wire format every configured Solana RPC provider speaks.
type httpCaller struct {
	client *http.Client
}

func newHTTPCaller() httpCaller {
	return httpCaller{client: &http.Client{Timeout: 15 * time.Second}}
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h httpCaller) Call(ctx context.Context, url, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func buildRouter(zlog zerolog.Logger, cfg *config.Config) *rpcrouter.Router {
	strategy := rpcrouter.Strategy(cfg.Router.Strategy)
	r := rpcrouter.New(zlog, strategy, rpcrouter.NetworkMainnetBeta, newHTTPCaller())
	for id, p := range cfg.Router.Providers {
		urls := make(map[rpcrouter.Network]string, len(p.URLs))
		for network, url := range p.URLs {
			urls[rpcrouter.Network(network)] = url
		}
		var features rpcrouter.Feature
		for _, f := range p.Features {
			switch strings.ToLower(f) {
			case "enhanced_data":
				features |= rpcrouter.FeatureEnhancedData
			case "webhooks":
				features |= rpcrouter.FeatureWebhooks
			}
		}
		r.AddProvider(rpcrouter.ProviderConfig{
			ID:             id,
			Kind:           p.Kind,
			URLs:           urls,
			APIKey:         p.APIKey,
			MonthlyQuota:   p.MonthlyQuota,
			RPMLimit:       p.RPMLimit,
			CostPerRequest: p.CostPerRequest,
			Features:       features,
			Priority:       p.Priority,
		})
	}
	return r
}
