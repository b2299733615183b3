package cache

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// l3SetRaw upserts a raw cache entry into the persistent tier. Callers are
// expected to have created the cache_entries table via the migrate command.
func (c *Cache) l3SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.l3.Exec(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, ttl.String())
	return err
}

// l3GetRaw returns the stored value for key if present and not expired. A
// row with expires_at in the past is treated as a miss, matching the never-
// return-expired invariant shared with the L1 tier.
func (c *Cache) l3GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.l3.QueryRow(ctx, `
		SELECT value FROM cache_entries WHERE key = $1 AND expires_at > now()
	`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// l3DeleteRaw removes key from the persistent tier, if present.
func (c *Cache) l3DeleteRaw(ctx context.Context, key string) error {
	_, err := c.l3.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	return err
}
