// Package app 装配单个服务进程：配置、可观测性、连接器、基础组件与 HTTP 服务。
//
// 资源按创建顺序登记 Shutdown，退出时逆序执行，保证先关闭依赖连接器的组件，再关闭连接器。
package app

import (
	"context"
	"time"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/cache"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/idem"
	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/mq"
	"github.com/ceyewan/gacha/ratelimit"
	"github.com/ceyewan/gacha/trace"
	"github.com/ceyewan/gacha/xerrors"
)

// Shutdown 退出时执行的清理函数
type Shutdown func(context.Context) error

// App 一个服务进程的全部运行时依赖
type App struct {
	cfg *Config

	Logger   clog.Logger
	Meter    metrics.Meter
	Breakers *breaker.Registry
	Guard    *breaker.Guard
	Service  Service

	db      db.DB
	redis   connector.RedisConnector
	nats    connector.NATSConnector
	limiter *ratelimit.Limiter

	connectors []connector.Connector
	shutdowns  []Shutdown
}

// Option App 选项
type Option func(*App)

// WithLogger 使用外部 Logger，跳过根据 Config.Log 创建
func WithLogger(l clog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.Logger = l
		}
	}
}

// WithMeter 使用外部 Meter
func WithMeter(m metrics.Meter) Option {
	return func(a *App) {
		if m != nil {
			a.Meter = m
		}
	}
}

// New 按配置装配服务，任一步失败都会回收已创建的资源
func New(ctx context.Context, cfg *Config, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app: config is required")
	}
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := a.initObservability(); err != nil {
		return nil, err
	}
	if err := a.initConnectors(ctx); err != nil {
		return nil, err
	}
	if err := a.initComponents(); err != nil {
		return nil, err
	}

	svc, err := buildService(a)
	if err != nil {
		return nil, xerrors.Wrapf(err, "build %s service", cfg.Service)
	}
	a.Service = svc
	if err := svc.Migrate(ctx); err != nil {
		return nil, xerrors.Wrapf(err, "migrate %s", cfg.Service)
	}
	return a, nil
}

// Config 当前生效的配置
func (a *App) Config() *Config { return a.cfg }

func (a *App) onShutdown(fn Shutdown) {
	a.shutdowns = append(a.shutdowns, fn)
}

func (a *App) initObservability() error {
	cfg := a.cfg
	if cfg.Trace.ServiceName == "" {
		cfg.Trace.ServiceName = cfg.Service
	}
	traceShutdown, err := trace.Init(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}
	a.onShutdown(traceShutdown)

	if a.Logger == nil {
		logger, err := clog.New(&cfg.Log, clog.WithNamespace(cfg.Service), clog.WithStandardContext())
		if err != nil {
			return xerrors.Wrap(err, "init logger")
		}
		a.Logger = logger
	}

	if a.Meter == nil {
		if cfg.Metrics.ServiceName == "" {
			cfg.Metrics.ServiceName = cfg.Service
		}
		cfg.Metrics.Version = cfg.Version
		meter, err := metrics.New(&cfg.Metrics)
		if err != nil {
			return xerrors.Wrap(err, "init metrics")
		}
		a.Meter = meter
		a.onShutdown(meter.Shutdown)
	}
	return nil
}

func (a *App) initConnectors(ctx context.Context) error {
	cfg := a.cfg
	logger := a.Logger

	sqlConn, err := connector.NewSQL(&cfg.Database, connector.WithLogger(logger))
	if err != nil {
		return err
	}
	a.trackConnector(sqlConn)
	if err := sqlConn.Connect(ctx); err != nil {
		return err
	}
	a.db, err = db.New(sqlConn, &cfg.DB, db.WithLogger(logger))
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		a.redis, err = connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
		if err != nil {
			return err
		}
		a.trackConnector(a.redis)
		if err := a.redis.Connect(ctx); err != nil {
			return err
		}
	}

	if cfg.NATS.URL != "" {
		a.nats, err = connector.NewNATS(&cfg.NATS, connector.WithLogger(logger))
		if err != nil {
			return err
		}
		a.trackConnector(a.nats)
		if err := a.nats.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) trackConnector(c connector.Connector) {
	a.connectors = append(a.connectors, c)
	a.onShutdown(func(context.Context) error { return c.Close() })
}

func (a *App) initComponents() error {
	cfg := a.cfg
	var err error

	a.Guard, err = breaker.NewGuard(&cfg.Guard, breaker.WithLogger(a.Logger), breaker.WithMeter(a.Meter))
	if err != nil {
		return err
	}
	a.Breakers, err = breaker.NewRegistry(&cfg.Breaker, breaker.WithLogger(a.Logger), breaker.WithMeter(a.Meter))
	if err != nil {
		return err
	}

	if cfg.RateLimit.Enabled() {
		a.limiter, err = ratelimit.New(&cfg.RateLimit, ratelimit.WithLogger(a.Logger), ratelimit.WithMeter(a.Meter))
		if err != nil {
			return err
		}
		a.onShutdown(func(context.Context) error { return a.limiter.Close() })
	}
	return nil
}

// newCache 按配置创建缓存，distributed 模式缺少 Redis 时退回本地缓存
func (a *App) newCache() (cache.Cache, error) {
	cfg := a.cfg.Cache
	opts := []cache.Option{cache.WithLogger(a.Logger), cache.WithMeter(a.Meter), cache.WithGuard(a.Guard)}
	if cfg.Mode == cache.ModeDistributed {
		if a.redis == nil {
			a.Logger.Warn("redis is not configured, falling back to standalone cache")
			cfg.Mode = cache.ModeStandalone
		} else {
			opts = append(opts, cache.WithRedisConnector(a.redis))
		}
	}
	c, err := cache.New(&cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.onShutdown(func(context.Context) error { return c.Close() })
	return c, nil
}

// newMQ 未配置 NATS 时返回 noop 客户端，事件被丢弃
func (a *App) newMQ() (mq.Client, error) {
	if a.nats == nil {
		a.Logger.Warn("nats is not configured, events are disabled")
		return mq.Discard(), nil
	}
	c, err := mq.New(a.nats, &a.cfg.MQ, mq.WithLogger(a.Logger), mq.WithMeter(a.Meter), mq.WithGuard(a.Guard))
	if err != nil {
		return nil, err
	}
	a.onShutdown(func(context.Context) error { return c.Close() })
	return c, nil
}

func (a *App) newIdem() (*idem.Idem, error) {
	cfg := a.cfg.Idem
	opts := []idem.Option{idem.WithLogger(a.Logger)}
	if cfg.Driver == idem.DriverRedis {
		if a.redis == nil {
			a.Logger.Warn("redis is not configured, idempotency records are kept in memory")
			cfg.Driver = idem.DriverMemory
		} else {
			opts = append(opts, idem.WithRedisConnector(a.redis))
		}
	}
	return idem.New(&cfg, opts...)
}

func (a *App) newVerifier(audience string) (*auth.Verifier, error) {
	cfg := a.cfg.Auth
	if cfg.Audience == "" {
		cfg.Audience = audience
	}
	return auth.NewVerifier(&cfg, auth.WithLogger(a.Logger), auth.WithMeter(a.Meter))
}

// Close 逆序执行所有 Shutdown，返回遇到的第一个错误
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		if err := a.shutdowns[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.shutdowns = nil
	return first
}

// Health 依赖连接与熔断器的快照
type Health struct {
	Service    string             `json:"service"`
	Status     string             `json:"status"`
	Connectors map[string]bool    `json:"connectors"`
	Breakers   []breaker.Snapshot `json:"breakers"`
	Time       time.Time          `json:"time"`
}

// Health 主动探测所有连接器，任一不可用时 Status 为 degraded
func (a *App) Health(ctx context.Context) Health {
	h := Health{
		Service:    a.cfg.Service,
		Status:     "ok",
		Connectors: make(map[string]bool, len(a.connectors)),
		Breakers:   a.Breakers.Snapshots(),
		Time:       time.Now().UTC(),
	}
	for _, c := range a.connectors {
		healthy := c.HealthCheck(ctx) == nil
		h.Connectors[connectorKind(c)+":"+c.Name()] = healthy
		if !healthy {
			h.Status = "degraded"
		}
	}
	return h
}

func connectorKind(c connector.Connector) string {
	switch c.(type) {
	case connector.SQLConnector:
		return "sql"
	case connector.RedisConnector:
		return "redis"
	case connector.NATSConnector:
		return "nats"
	default:
		return "unknown"
	}
}
