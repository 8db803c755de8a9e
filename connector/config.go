package connector

import (
	"time"

	"github.com/ceyewan/gacha/xerrors"
)

// 支持的 SQL 驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name string `mapstructure:"name"` // 连接器名称 (默认: "default")

	Addr     string `mapstructure:"addr"`     // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"` // [可选]
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`      // 默认: 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认: 2
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认: 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认: 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认: 3s

	// EnableTracing 通过 redisotel 为命令生成 span 与连接池指标
	EnableTracing bool `mapstructure:"enable_tracing"`
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 2
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is required")
	}
	if c.PoolSize < 0 {
		return xerrors.Wrap(ErrConfig, "redis pool_size must be positive")
	}
	return nil
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Name string `mapstructure:"name"` // 连接器名称 (默认: "default")

	URL      string `mapstructure:"url"`      // [必填] 如 "nats://127.0.0.1:4222"
	Username string `mapstructure:"username"` // [可选]
	Password string `mapstructure:"password"` // [可选]
	Token    string `mapstructure:"token"`    // [可选]

	Timeout       time.Duration `mapstructure:"timeout"`        // 默认: 5s
	MaxReconnects int           `mapstructure:"max_reconnects"` // 默认: 60
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"` // 默认: 2s
	PingInterval  time.Duration `mapstructure:"ping_interval"`  // 默认: 2m
	MaxPingsOut   int           `mapstructure:"max_pings_out"`  // 默认: 2
}

func (c *NATSConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 2 * time.Minute
	}
	if c.MaxPingsOut == 0 {
		c.MaxPingsOut = 2
	}
}

func (c *NATSConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "nats config is nil")
	}
	c.setDefaults()
	if c.URL == "" {
		return xerrors.Wrap(ErrConfig, "nats url is required")
	}
	return nil
}

// SQLConfig SQL 连接配置
//
//	db:
//	  driver: sqlite
//	  dsn: file:profile.db?_foreign_keys=1
type SQLConfig struct {
	Name   string `mapstructure:"name"`   // 连接器名称 (默认: "default")
	Driver string `mapstructure:"driver"` // mysql | postgres | sqlite (默认: sqlite)
	DSN    string `mapstructure:"dsn"`    // [必填] 驱动原生 DSN，sqlite 为文件路径

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认: 10
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 默认: 100，sqlite 为 1
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认: 1h
}

func (c *SQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
		// SQLite 单写者，多连接只会带来 "database is locked"
		if c.Driver == DriverSQLite {
			c.MaxOpenConns = 1
		}
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

func (c *SQLConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "sql config is nil")
	}
	c.setDefaults()
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return xerrors.Wrapf(ErrConfig, "unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return xerrors.Wrap(ErrConfig, "dsn is required")
	}
	return nil
}
