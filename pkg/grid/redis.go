package grid

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"go.uber.org/atomic"
)

// redisDriver attaches to a redis deployment. Each map is one redis hash.
type redisDriver struct {
	cfg     RedisConfig
	client  redis.UniversalClient
	running *atomic.Bool
	logger  log.Logger
}

func newRedisDriver(cfg RedisConfig, logger log.Logger) *redisDriver {
	return &redisDriver{
		cfg:     cfg,
		running: atomic.NewBool(false),
		logger:  logger,
	}
}

func (d *redisDriver) start(ctx context.Context) error {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        d.cfg.addrs(),
		MasterName:   d.cfg.MasterName,
		DB:           d.cfg.DB,
		Password:     d.cfg.Password,
		DialTimeout:  d.cfg.Timeout,
		ReadTimeout:  d.cfg.Timeout,
		WriteTimeout: d.cfg.Timeout,
		PoolSize:     d.cfg.PoolSize,
	})

	pingCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to reach redis at %s: %w", d.cfg.Endpoint, err)
	}

	d.client = client
	d.running.Store(true)
	return nil
}

func (d *redisDriver) openMap(_ context.Context, cfg CacheConfig) (Map, error) {
	if cfg.EvictionPolicy != nil {
		level.Warn(d.logger).Log("msg", "eviction policy is managed by the redis server, ignoring", "cache", cfg.Name)
	}

	prefix := d.cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &redisMap{
		name:    cfg.Name,
		key:     prefix + ":" + cfg.Name,
		client:  d.client,
		running: d.running,
	}, nil
}

func (d *redisDriver) stop() error {
	if d.client == nil {
		return nil
	}
	d.running.Store(false)
	return d.client.Close()
}

type redisMap struct {
	name    string
	key     string
	client  redis.UniversalClient
	running *atomic.Bool
}

func (m *redisMap) Name() string {
	return m.name
}

func (m *redisMap) Put(ctx context.Context, key, value []byte) error {
	if !m.running.Load() {
		return ErrRuntimeNotRunning
	}
	return m.client.HSet(ctx, m.key, string(key), value).Err()
}

func (m *redisMap) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if !m.running.Load() {
		return nil, false, ErrRuntimeNotRunning
	}
	b, err := m.client.HGet(ctx, m.key, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (m *redisMap) Remove(ctx context.Context, key []byte) ([]byte, bool, error) {
	if !m.running.Load() {
		return nil, false, ErrRuntimeNotRunning
	}
	var get *redis.StringCmd
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, m.key, string(key))
		pipe.HDel(ctx, m.key, string(key))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, err
	}

	b, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (m *redisMap) Clear(ctx context.Context) error {
	if !m.running.Load() {
		return ErrRuntimeNotRunning
	}
	return m.client.Del(ctx, m.key).Err()
}

// Size is HLEN on the node that owns the hash, which is that map's primary.
func (m *redisMap) Size(ctx context.Context) (int, error) {
	if !m.running.Load() {
		return 0, ErrRuntimeNotRunning
	}
	n, err := m.client.HLen(ctx, m.key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
