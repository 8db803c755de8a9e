package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

type sqlConnector struct {
	cfg     *SQLConfig
	db      *gorm.DB
	logger  clog.Logger
	healthy atomic.Bool
	mu      sync.RWMutex
}

// NewSQL 创建 SQL 连接器
// 注意：实际连接在调用 Connect() 时建立
func NewSQL(cfg *SQLConfig, opts ...Option) (SQLConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opt := newOptions(opts)

	return &sqlConnector{
		cfg:    cfg,
		logger: opt.logger.With(clog.String("connector", cfg.Driver), clog.String("name", cfg.Name)),
	}, nil
}

func (c *sqlConnector) dialector() gorm.Dialector {
	switch c.cfg.Driver {
	case DriverMySQL:
		return mysql.Open(c.cfg.DSN)
	case DriverPostgres:
		return postgres.Open(c.cfg.DSN)
	default:
		return sqlite.Open(c.cfg.DSN)
	}
}

// Connect 建立连接
func (c *sqlConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	c.logger.Info("attempting to connect to database")

	// SQL 日志由 db 组件接管；TranslateError 把唯一约束冲突统一为 gorm.ErrDuplicatedKey
	db, err := gorm.Open(c.dialector(), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		c.logger.Error("failed to open database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: get db instance: %v", c.cfg.Driver, c.cfg.Name, err)
	}
	sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		c.logger.Error("failed to ping database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: ping failed: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("successfully connected to database")
	return nil
}

// Close 关闭连接
func (c *sqlConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	c.logger.Info("closing database connection")
	return sqlDB.Close()
}

// HealthCheck 检查连接健康状态
func (c *sqlConnector) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrNotConnected, "%s connector[%s]", c.cfg.Driver, c.cfg.Name)
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("database health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *sqlConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *sqlConnector) Name() string { return c.cfg.Name }

func (c *sqlConnector) Driver() string { return c.cfg.Driver }

func (c *sqlConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
