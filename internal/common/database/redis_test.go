package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat/internal/common/config"
	"tutor-chat/internal/models"
)

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedis_OptionsFromConfig(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc, err := NewRedis(config.RedisConfig{
		Address:      mr.Addr(),
		DB:           3,
		PoolSize:     4,
		MinIdleConns: 1,
		DialTimeout:  2000,
		ReadTimeout:  1500,
		WriteTimeout: 1500,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	opts := rc.Client.Options()
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, 1, opts.MinIdleConns)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 1500*time.Millisecond, opts.ReadTimeout)

	require.NoError(t, rc.Ping(context.Background()))
}

func TestRedisClient_HistoryStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	store := rc.HistoryStore(config.HistoryConfig{KeyPrefix: "t:", TTL: 60, MaxTurns: 10})
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s-1", models.Turn{Role: models.RoleUser, Text: "Hallo"}))

	assert.True(t, mr.Exists("t:s-1"))
	assert.Equal(t, time.Minute, mr.TTL("t:s-1"))
}

func TestRedisClient_PingNamesAddress(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	rc, err := NewRedis(config.RedisConfig{Address: addr, DialTimeout: 200})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	err = rc.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
