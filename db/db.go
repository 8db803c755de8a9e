// Package db 在 SQL 连接器之上提供 GORM 组件。
//
// db 组件借用连接器的连接，不负责连接的生命周期，它提供：
//   - 按请求携带 Context 的 *gorm.DB
//   - 事务管理
//   - GORM 日志桥接到 clog（慢 SQL 告警）
//   - 可选的 otelgorm 链路追踪
//
// 基本使用：
//
//	conn, _ := connector.NewSQL(&cfg.DB, connector.WithLogger(logger))
//	defer conn.Close()
//	_ = conn.Connect(ctx)
//
//	database, _ := db.New(conn, &db.Config{SlowThreshold: 200 * time.Millisecond}, db.WithLogger(logger))
//	_ = database.AutoMigrate(ctx, &Profile{}, &OwnershipRecord{})
//
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&Profile{Username: "alice"}).Error
//	})
package db

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"

	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/xerrors"
)

// DB 数据库组件的核心能力
type DB interface {
	// DB 获取绑定了 ctx 的 *gorm.DB，绝大多数查询直接使用它
	DB(ctx context.Context) *gorm.DB

	// Transaction 执行事务，fn 中的 tx 仅在当前事务范围内有效
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error

	// AutoMigrate 按模型建表或补齐列
	AutoMigrate(ctx context.Context, models ...any) error

	// Close 关闭组件，连接由连接器管理
	Close() error
}

type database struct {
	client *gorm.DB
	cfg    *Config
}

// New 创建数据库组件
func New(conn connector.SQLConnector, cfg *Config, opts ...Option) (DB, error) {
	if conn == nil || conn.GetClient() == nil {
		return nil, ErrConnectorRequired
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := newOptions(opts)

	gormDB := conn.GetClient()
	if cfg.EnableTracing {
		err := gormDB.Use(otelgorm.NewPlugin(
			otelgorm.WithDBName(conn.Name()),
			otelgorm.WithoutQueryVariables(),
		))
		// 同一连接器可以被多个组件借用，插件只需注册一次
		if err != nil && !xerrors.Is(err, gorm.ErrRegistered) {
			return nil, xerrors.Wrap(err, "register otelgorm plugin")
		}
	}

	level, _ := parseLogLevel(cfg.LogLevel)
	client := gormDB.Session(&gorm.Session{
		Logger: newGormLogger(opt.logger, level, cfg.SlowThreshold),
	})

	return &database{client: client, cfg: cfg}, nil
}

// DB 获取底层的 *gorm.DB 实例
func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

// Transaction 执行事务操作
func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

// AutoMigrate 建表
func (d *database) AutoMigrate(ctx context.Context, models ...any) error {
	if err := d.client.WithContext(ctx).AutoMigrate(models...); err != nil {
		return xerrors.Wrap(err, "auto migrate")
	}
	return nil
}

// Close GORM 的连接由连接器管理，这里不需要额外关闭
func (d *database) Close() error {
	return nil
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return xerrors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate 判断是否违反唯一约束，需要 gorm.Config.TranslateError 或驱动原生错误文本
func IsDuplicate(err error) bool {
	return xerrors.Is(err, gorm.ErrDuplicatedKey) || containsUniqueViolation(err)
}
