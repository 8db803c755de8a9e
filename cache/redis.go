package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/cache/serializer"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/xerrors"
)

type redisCache struct {
	client     *redis.Client
	guard      *breaker.Guard
	guardKey   string
	serializer serializer.Serializer
	prefix     string
	ttl        time.Duration
	logger     clog.Logger
	ins        *instruments
}

func newRedis(conn connector.RedisConnector, cfg *Config, o *options, ins *instruments) (Cache, error) {
	s, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	guard := o.guard
	if guard == nil {
		guard, err = breaker.NewGuard(nil, breaker.WithLogger(o.logger), breaker.WithMeter(o.meter))
		if err != nil {
			return nil, err
		}
	}

	return &redisCache{
		client:     conn.GetClient(),
		guard:      guard,
		guardKey:   "redis:" + conn.Name(),
		serializer: s,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		logger:     o.logger,
		ins:        ins,
	}, nil
}

func (c *redisCache) getKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return xerrors.Wrapf(err, "marshal %s", key)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	_, err = c.guard.Execute(ctx, c.guardKey, func() (any, error) {
		return nil, c.client.Set(ctx, c.getKey(key), data, ttl).Err()
	})
	return err
}

// Get redis.Nil 在熔断器内视为成功，避免未命中把熔断器打开
func (c *redisCache) Get(ctx context.Context, key string, dest any) error {
	v, err := c.guard.Execute(ctx, c.guardKey, func() (any, error) {
		data, err := c.client.Get(ctx, c.getKey(key)).Bytes()
		if xerrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		c.ins.observe(ctx, resultError)
		c.logger.WarnContext(ctx, "redis get failed", clog.String("key", key), clog.Error(err))
		return err
	}
	data, _ := v.([]byte)
	if data == nil {
		c.ins.observe(ctx, resultMiss)
		return ErrMiss
	}
	if err := c.serializer.Unmarshal(data, dest); err != nil {
		c.ins.observe(ctx, resultError)
		return xerrors.Wrapf(err, "unmarshal %s", key)
	}
	c.ins.observe(ctx, resultHit)
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.getKey(k)
	}
	_, err := c.guard.Execute(ctx, c.guardKey, func() (any, error) {
		return nil, c.client.Del(ctx, full...).Err()
	})
	return err
}

// Close 连接由连接器管理
func (c *redisCache) Close() error {
	return nil
}
