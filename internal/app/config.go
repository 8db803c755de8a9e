package app

import (
	"context"
	"time"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/cache"
	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/config"
	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/idem"
	"github.com/ceyewan/gacha/internal/catalog"
	"github.com/ceyewan/gacha/internal/payment"
	"github.com/ceyewan/gacha/internal/profile"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/mq"
	"github.com/ceyewan/gacha/ratelimit"
	"github.com/ceyewan/gacha/trace"
	"github.com/ceyewan/gacha/xerrors"
)

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config 单个服务进程的全部配置，profile / catalog / payment 共用一套结构，
// 未用到的部分保持零值即可。Redis 与 NATS 的地址为空时不建立连接。
type Config struct {
	Service string     `mapstructure:"service"`
	Version string     `mapstructure:"version"`
	HTTP    HTTPConfig `mapstructure:"http"`

	Log     clog.Config    `mapstructure:"log"`
	Metrics metrics.Config `mapstructure:"metrics"`
	Trace   trace.Config   `mapstructure:"trace"`

	Database connector.SQLConfig   `mapstructure:"database"`
	DB       db.Config             `mapstructure:"db"`
	Redis    connector.RedisConfig `mapstructure:"redis"`
	NATS     connector.NATSConfig  `mapstructure:"nats"`
	MQ       mq.Config             `mapstructure:"mq"`
	Cache    cache.Config          `mapstructure:"cache"`
	Idem     idem.Config           `mapstructure:"idem"`

	Breaker breaker.Config           `mapstructure:"breaker"`
	Guard   breaker.GuardConfig      `mapstructure:"guard"`
	Clients map[string]client.Config `mapstructure:"clients"`

	Auth      auth.Config      `mapstructure:"auth"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Uploads   uploads.Config   `mapstructure:"uploads"`

	Profile profile.Config `mapstructure:"profile"`
	Catalog catalog.Config `mapstructure:"catalog"`
	Payment payment.Config `mapstructure:"payment"`
}

// DefaultAddrs 各服务的默认监听地址
var DefaultAddrs = map[string]string{
	profile.Name: ":5002",
	catalog.Name: ":5004",
	payment.Name: ":5006",
}

// Defaults 返回服务的默认值，同时让 GACHA_ 前缀的环境变量可以覆盖这些 key
func Defaults(service string) map[string]any {
	addr := DefaultAddrs[service]
	if addr == "" {
		addr = ":8080"
	}
	return map[string]any{
		"service":               service,
		"http.addr":             addr,
		"http.read_timeout":     "15s",
		"http.write_timeout":    "30s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "10s",

		"log.level":  "info",
		"log.format": "json",
		"log.output": "stdout",

		"metrics.enabled":        true,
		"metrics.service_name":   service,
		"metrics.enable_runtime": true,
		"trace.enabled":          false,
		"trace.service_name":     service,
		"trace.sampler":          1.0,
		"trace.insecure":         true,

		"database.driver": connector.DriverSQLite,
		"database.dsn":    service + ".db",
		"db.log_level":    "warn",
		"redis.addr":      "",
		"nats.url":        "",

		"cache.mode":       cache.ModeStandalone,
		"cache.prefix":     "gacha:" + service + ":",
		"cache.serializer": "msgpack",
		"idem.driver":      string(idem.DriverMemory),

		"breaker.failure_threshold": 3,
		"breaker.reset_timeout":     "10s",

		"clients.catalog.base_url": "http://localhost:5004",
		"clients.catalog.timeout":  "5s",
		"clients.payment.base_url": "http://localhost:5006",
		"clients.payment.timeout":  "5s",

		"auth.public_key_path": "keys/public.pem",
		"uploads.dir":          "./static/uploads",
		"ratelimit.rate":       0,
	}
}

// LoadConfig 加载 service 的配置，file 为空时按 <service>.yaml 在 . 与 ./configs 下查找
func LoadConfig(ctx context.Context, service, file string, logger clog.Logger) (*Config, config.Loader, error) {
	if _, ok := DefaultAddrs[service]; !ok {
		return nil, nil, xerrors.NewKind(xerrors.KindValidation, "unknown service %q", service)
	}
	loader, err := config.New(&config.Config{
		Name:     service,
		File:     file,
		Defaults: Defaults(service),
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, nil, xerrors.Wrap(err, "unmarshal config")
	}
	cfg.Service = service
	return &cfg, loader, nil
}
