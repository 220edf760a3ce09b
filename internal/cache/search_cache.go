package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"auctionsearch/internal/domain"
)

const (
	keyPrefix     = "auctionsearch:search:"
	generationKey = "auctionsearch:search:generation"
)

// SearchCache stores rendered search pages in Redis. Entries are namespaced
// by a generation counter so one INCR drops every page after a sync.
type SearchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSearchCache(rdb *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{rdb: rdb, ttl: ttl}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Get reads the page stored under key, as returned by Key.
func (c *SearchCache) Get(ctx context.Context, key string) (domain.Page, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Page{}, false, nil
	}
	if err != nil {
		return domain.Page{}, false, fmt.Errorf("failed to read cached page: %w", err)
	}
	var page domain.Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return domain.Page{}, false, fmt.Errorf("failed to decode cached page: %w", err)
	}
	return page, true, nil
}

// Set stores page under key. Callers pass the key they resolved before
// reading the replica; if a sync invalidated the cache in between, the page
// lands in a retired generation and is never served.
func (c *SearchCache) Set(ctx context.Context, key string, page domain.Page) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate retires every cached page.
func (c *SearchCache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, generationKey).Err()
}

// Key resolves the current generation and returns the entry key for p.
func (c *SearchCache) Key(ctx context.Context, p domain.SearchParams) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read cache generation: %w", err)
	}
	p = p.Normalized()
	canonical := fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s\x00%d\x00%d",
		p.SearchTerm, p.OrderBy, p.FilterBy, p.Seller, p.Winner, p.PageNumber, p.PageSize)
	sum := sha256.Sum256([]byte(canonical))
	return keyPrefix + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(sum[:16]), nil
}
