// Package idem 为写接口提供 HTTP 幂等：携带相同 Idempotency-Key 的重复请求直接回放首次的响应。
//
// 首个请求持有处理锁，成功（2xx）后响应被缓存 TTL 时长；处理失败会释放锁，允许客户端重试。
// 处理中的重复请求立即得到 409，不会排队等待。
//
//	im, _ := idem.New(&idem.Config{Driver: idem.DriverRedis}, idem.WithRedisConnector(conn))
//	r.POST("/buycurrency", authn, im.GinMiddleware(), handler)
package idem

import (
	"context"
	"time"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

// DriverType 后端类型
type DriverType string

const (
	DriverMemory DriverType = "memory"
	DriverRedis  DriverType = "redis"
)

// DefaultHeader 幂等键所在的请求头
const DefaultHeader = "Idempotency-Key"

var (
	ErrConfigNil         = xerrors.New("idem: config is nil")
	ErrKeyEmpty          = xerrors.New("idem: key is empty")
	ErrConcurrentRequest = xerrors.WithKind(xerrors.New("idem: request with this key is in progress"), xerrors.KindConflict)
	ErrResultNotFound    = xerrors.New("idem: result not found")
)

// Config 幂等组件配置
//
//	idem:
//	  driver: redis
//	  prefix: "gacha:idem:"
//	  ttl: 24h
//	  lock_ttl: 30s
type Config struct {
	Driver  DriverType    `mapstructure:"driver"`   // memory（默认）| redis
	Prefix  string        `mapstructure:"prefix"`   // 默认 "idem:"
	TTL     time.Duration `mapstructure:"ttl"`      // 响应保留时长，默认 24h
	LockTTL time.Duration `mapstructure:"lock_ttl"` // 处理锁的超时，防止进程崩溃后死锁，默认 30s
	Header  string        `mapstructure:"header"`   // 默认 Idempotency-Key
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Prefix == "" {
		c.Prefix = "idem:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.Header == "" {
		c.Header = DefaultHeader
	}
}

// Idem 幂等组件
type Idem struct {
	cfg    Config
	store  Store
	logger clog.Logger
}

// New 创建幂等组件，redis 驱动需要 WithRedisConnector
func New(cfg *Config, opts ...Option) (*Idem, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	var store Store
	switch c.Driver {
	case DriverMemory:
		store = newMemoryStore(c.Prefix, time.Now)
	case DriverRedis:
		if o.redisConn == nil {
			return nil, xerrors.New("idem: redis connector is required, use WithRedisConnector")
		}
		store = newRedisStore(o.redisConn.GetClient(), c.Prefix)
	default:
		return nil, xerrors.NewKind(xerrors.KindValidation, "idem: unsupported driver: %s", c.Driver)
	}

	logger := o.logger.With(clog.String("component", "idem"))
	logger.Info("idem component created",
		clog.String("driver", string(c.Driver)),
		clog.String("prefix", c.Prefix),
		clog.Duration("ttl", c.TTL))

	return &Idem{cfg: c, store: store, logger: logger}, nil
}

// Execute 以 key 为幂等键执行 fn，成功结果由 encode 编码后缓存；
// 命中缓存时返回缓存字节且 executed 为 false
func (i *Idem) Execute(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) (result []byte, executed bool, err error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}
	cached, err := i.store.GetResult(ctx, key)
	if err == nil {
		return cached, false, nil
	}
	if !xerrors.Is(err, ErrResultNotFound) {
		return nil, false, err
	}

	locked, err := i.store.Lock(ctx, key, i.cfg.LockTTL)
	if err != nil {
		return nil, false, err
	}
	if !locked {
		// 锁释放与结果写入之间可能恰好被抢到，再看一次结果
		if cached, err := i.store.GetResult(ctx, key); err == nil {
			return cached, false, nil
		}
		return nil, false, ErrConcurrentRequest
	}

	stored := false
	defer func() {
		if stored {
			return
		}
		if err := i.store.Unlock(context.WithoutCancel(ctx), key); err != nil {
			i.logger.Error("failed to release idem lock", clog.String("key", key), clog.Error(err))
		}
	}()

	result, err = fn(ctx)
	if err != nil {
		return nil, true, err
	}
	if result == nil {
		// fn 选择不缓存本次结果
		return nil, true, nil
	}
	if err := i.store.SetResult(ctx, key, result, i.cfg.TTL); err != nil {
		i.logger.Error("failed to store idem result", clog.String("key", key), clog.Error(err))
		return result, true, nil
	}
	stored = true
	return result, true, nil
}
