package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/consume_stock.lua
var consumeStockScript string

//go:embed scripts/restore_stock.lua
var restoreStockScript string

const lowStockSetKey = "parts:low_stock"

// Client mirrors part stock levels in Redis as a fast-path admission
// check in front of the database. Postgres stays authoritative; a cache
// miss or Redis error falls through to the database path.
type Client struct {
	rdb           *redis.Client
	consumeScript *redis.Script
	restoreScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return &Client{
		rdb:           rdb,
		consumeScript: redis.NewScript(consumeStockScript),
		restoreScript: redis.NewScript(restoreStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(partID string) string {
	return fmt.Sprintf("stock:%s", partID)
}

// TryConsume atomically checks and decrements the mirrored stock count.
// Returns false when the mirror says stock is insufficient. A missing
// key counts as success so the database stays the deciding vote.
func (c *Client) TryConsume(ctx context.Context, partID string, quantity int) (bool, error) {
	result, err := c.consumeScript.Run(ctx, c.rdb, []string{stockKey(partID)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("consume stock script failed: %w", err)
	}

	ok, isInt := result.(int64)
	if !isInt {
		return false, fmt.Errorf("unexpected script result type")
	}
	return ok == 1, nil
}

// Restore atomically re-increments the mirrored stock count. Used both
// for reversals and to undo a fast-path decrement when the database
// write fails behind it.
func (c *Client) Restore(ctx context.Context, partID string, quantity int) error {
	_, err := c.restoreScript.Run(ctx, c.rdb, []string{stockKey(partID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("restore stock script failed: %w", err)
	}
	return nil
}

// SetStock overwrites the mirrored count for a part
func (c *Client) SetStock(ctx context.Context, partID string, onHand int) error {
	return c.rdb.Set(ctx, stockKey(partID), onHand, 0).Err()
}

// MarkLowStock adds a part to the low-stock set
func (c *Client) MarkLowStock(ctx context.Context, partID string) error {
	return c.rdb.SAdd(ctx, lowStockSetKey, partID).Err()
}

// ClearLowStock removes a part from the low-stock set
func (c *Client) ClearLowStock(ctx context.Context, partID string) error {
	return c.rdb.SRem(ctx, lowStockSetKey, partID).Err()
}

// LowStockParts lists parts currently flagged low
func (c *Client) LowStockParts(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, lowStockSetKey).Result()
}
