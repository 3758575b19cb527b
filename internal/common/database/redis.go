// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor-chat/internal/common/config"
)

// RedisClient is the connection behind the Redis history backend.
type RedisClient struct {
	Client *redis.Client
	addr   string
}

// NewRedis builds a client from the database.redis section. It does not
// dial; call Ping to check the connection.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  config.GetDuration(cfg.DialTimeout),
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	return &RedisClient{Client: rdb, addr: cfg.Address}, nil
}

// Ping checks the connection; /ready reports its error verbatim.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", c.addr, err)
	}
	return nil
}

// HistoryStore returns a conversation store on this connection.
func (c *RedisClient) HistoryStore(h config.HistoryConfig) *RedisHistoryStore {
	return NewRedisHistoryStore(c.Client, h.KeyPrefix, time.Duration(h.TTL)*time.Second, h.MaxTurns)
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
