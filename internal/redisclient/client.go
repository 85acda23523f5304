package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"commerce-service/internal/models"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID, variantID int64) string {
	return fmt.Sprintf("stock:%d:%d", productID, variantID)
}

// GetStockLevel returns the cached stock level for a SKU. The second return
// value is false on a cache miss.
func (c *Client) GetStockLevel(ctx context.Context, productID, variantID int64) (models.StockLevel, bool, error) {
	var level models.StockLevel

	raw, err := c.rdb.Get(ctx, stockKey(productID, variantID)).Bytes()
	if err == redis.Nil {
		return level, false, nil
	}
	if err != nil {
		return level, false, err
	}

	if err := json.Unmarshal(raw, &level); err != nil {
		return level, false, fmt.Errorf("corrupt stock cache entry: %w", err)
	}
	return level, true, nil
}

// SetStockLevel caches a stock level with a TTL.
func (c *Client) SetStockLevel(ctx context.Context, productID, variantID int64, level models.StockLevel, ttl time.Duration) error {
	raw, err := json.Marshal(level)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, stockKey(productID, variantID), raw, ttl).Err()
}

// InvalidateStock drops the cached stock level for a SKU. Called after every
// committed transaction that appended movements for it.
func (c *Client) InvalidateStock(ctx context.Context, productID, variantID int64) error {
	return c.rdb.Del(ctx, stockKey(productID, variantID)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
