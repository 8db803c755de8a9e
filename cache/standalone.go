package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/gacha/cache/serializer"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

type standaloneCache struct {
	cache      *otter.Cache[string, []byte]
	serializer serializer.Serializer
	prefix     string
	ttl        time.Duration
	logger     clog.Logger
	ins        *instruments
}

func newStandalone(cfg *Config, o *options, ins *instruments) (Cache, error) {
	s, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	// 写入过期与 Redis TTL 语义一致：读取不会续期，具体 TTL 在 Set 时覆盖
	cache, err := otter.New(&otter.Options[string, []byte]{
		MaximumSize:      cfg.Capacity,
		ExpiryCalculator: otter.ExpiryWriting[string, []byte](cfg.TTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "build otter cache")
	}

	return &standaloneCache{
		cache:      cache,
		serializer: s,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		logger:     o.logger,
		ins:        ins,
	}, nil
}

func (c *standaloneCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return xerrors.Wrapf(err, "marshal %s", key)
	}
	k := c.prefix + key
	c.cache.Set(k, data)
	if ttl > 0 && ttl != c.ttl {
		c.cache.SetExpiresAfter(k, ttl)
	}
	return nil
}

func (c *standaloneCache) Get(ctx context.Context, key string, dest any) error {
	data, ok := c.cache.GetIfPresent(c.prefix + key)
	if !ok {
		c.ins.observe(ctx, resultMiss)
		return ErrMiss
	}
	if err := c.serializer.Unmarshal(data, dest); err != nil {
		c.ins.observe(ctx, resultError)
		c.logger.WarnContext(ctx, "drop undecodable cache entry", clog.String("key", key), clog.Error(err))
		c.cache.Invalidate(c.prefix + key)
		return ErrMiss
	}
	c.ins.observe(ctx, resultHit)
	return nil
}

func (c *standaloneCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Invalidate(c.prefix + key)
	}
	return nil
}

func (c *standaloneCache) Close() error {
	c.cache.InvalidateAll()
	return nil
}
