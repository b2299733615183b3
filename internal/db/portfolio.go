package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/cryptofunk/internal/simulator"
)

// SavePortfolio upserts a virtual portfolio (§4.5, §6.5) and replaces its
// holdings wholesale, so a simulated fill survives a restart.
func (db *DB) SavePortfolio(ctx context.Context, ownerID uuid.UUID, p *simulator.Portfolio) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin portfolio save: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	_, err = tx.Exec(ctx, `
		INSERT INTO portfolios (owner_id, sol_balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE SET sol_balance = EXCLUDED.sol_balance, updated_at = EXCLUDED.updated_at
	`, ownerID, p.SolBalance, now)
	if err != nil {
		return fmt.Errorf("upsert portfolio: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM portfolio_holdings WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("clear stale holdings: %w", err)
	}

	for _, h := range p.Holdings {
		_, err := tx.Exec(ctx, `
			INSERT INTO portfolio_holdings (owner_id, token_address, amount)
			VALUES ($1, $2, $3)
		`, ownerID, h.TokenAddress, h.Amount)
		if err != nil {
			return fmt.Errorf("insert holding %s: %w", h.TokenAddress, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit portfolio save: %w", err)
	}
	return nil
}

// LoadPortfolio reconstructs a virtual portfolio from its persisted
// sol_balance and holdings. Returns a fresh zero-balance portfolio (not an
// error) when ownerID has never been saved, mirroring NewPortfolio's
// zero-value semantics.
func (db *DB) LoadPortfolio(ctx context.Context, ownerID uuid.UUID) (*simulator.Portfolio, error) {
	var solBalance float64
	err := db.pool.QueryRow(ctx, `SELECT sol_balance FROM portfolios WHERE owner_id = $1`, ownerID).Scan(&solBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return simulator.NewPortfolio(0), nil
		}
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	p := simulator.NewPortfolio(solBalance)

	rows, err := db.pool.Query(ctx, `SELECT token_address, amount FROM portfolio_holdings WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h simulator.Holding
		if err := rows.Scan(&h.TokenAddress, &h.Amount); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		p.Holdings[h.TokenAddress] = &h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}

	return p, nil
}

// DeletePortfolio removes a portfolio and its holdings, e.g. when an agent
// is permanently deregistered.
func (db *DB) DeletePortfolio(ctx context.Context, ownerID uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM portfolios WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete portfolio: %w", err)
	}
	return nil
}
