package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/rpcrouter"
)

// SaveRPCQuotas snapshots every provider's monthly request counter so it
// survives a process restart (§6.5). Call periodically from a maintenance
// loop; the router itself never persists state.
func (db *DB) SaveRPCQuotas(ctx context.Context, router *rpcrouter.Router) error {
	now := time.Now()
	for id, stats := range router.AllStats() {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO rpc_quota_counters (provider_id, requests_month, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (provider_id) DO UPDATE SET requests_month = EXCLUDED.requests_month, updated_at = EXCLUDED.updated_at
		`, id, stats.RequestsMonth, now)
		if err != nil {
			return fmt.Errorf("save rpc quota counter for %s: %w", id, err)
		}
	}
	return nil
}

// RestoreRPCQuotas reapplies persisted monthly counters onto a freshly
// constructed router, before it starts serving traffic.
func (db *DB) RestoreRPCQuotas(ctx context.Context, router *rpcrouter.Router) error {
	rows, err := db.pool.Query(ctx, `SELECT provider_id, requests_month FROM rpc_quota_counters`)
	if err != nil {
		return fmt.Errorf("query rpc quota counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count uint64
		if err := rows.Scan(&id, &count); err != nil {
			return fmt.Errorf("scan rpc quota counter: %w", err)
		}
		router.RestoreMonthlyCount(id, count)
	}
	return rows.Err()
}
