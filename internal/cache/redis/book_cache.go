package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantera/tradesim/internal/domain"
)

// BookCache implements domain.BookCache. Snapshots are stored whole as JSON:
// the feed fully replaces the book on every update, so there is nothing to
// merge server-side and a single value per symbol suffices.
//
// Key schema:
//
//	book:{symbol}:snapshot - JSON-encoded domain.BookSnapshot
//	book:{symbol}:mid      - hash with "price" and "ts" (unix nanos)
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache backed by the given Client. Entries expire
// after ttl so a stalled writer cannot serve stale books forever; ttl <= 0
// disables expiry.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(symbol string) string { return "book:" + symbol + ":snapshot" }
func midKey(symbol string) string      { return "book:" + symbol + ":mid" }

// SetSnapshot replaces the cached snapshot for a symbol.
func (bc *BookCache) SetSnapshot(ctx context.Context, symbol string, snap domain.BookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", symbol, err)
	}
	if err := bc.rdb.Set(ctx, snapshotKey(symbol), payload, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", symbol, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot for a symbol, or domain.ErrNotFound
// when none is cached.
func (bc *BookCache) GetSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	raw, err := bc.rdb.Get(ctx, snapshotKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	var snap domain.BookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", symbol, err)
	}
	return snap, nil
}

// SetMidPrice records the symbol's latest mid price.
func (bc *BookCache) SetMidPrice(ctx context.Context, symbol string, mid float64, ts time.Time) error {
	key := midKey(symbol)
	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"price", strconv.FormatFloat(mid, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixNano(), 10),
	)
	if bc.ttl > 0 {
		pipe.Expire(ctx, key, bc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mid %s: %w", symbol, err)
	}
	return nil
}

// GetMidPrice returns the symbol's latest cached mid price and its timestamp,
// or domain.ErrNotFound when none is cached.
func (bc *BookCache) GetMidPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	fields, err := bc.rdb.HGetAll(ctx, midKey(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mid %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}
	mid, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mid %s: %w", symbol, err)
	}
	nanos, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mid ts %s: %w", symbol, err)
	}
	return mid, time.Unix(0, nanos), nil
}
