// Package connector 管理服务依赖的外部连接：Redis、NATS 与 SQL（MySQL / PostgreSQL / SQLite）。
//
// 连接器只负责连接的生命周期，业务组件（db、cache、mq）借用连接器的客户端，不调用 Close()：
//
//	conn, err := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	client := conn.GetClient()
//
// NewXXX() 只校验配置，Connect() 时才真正建立连接，Connect() 可重复调用。
// 应用层按 LIFO 顺序释放：先关闭依赖连接器的组件，再关闭连接器。
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Connector 所有连接器的通用行为，方法并发安全
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error
	// Close 关闭连接，幂等
	Close() error
	// HealthCheck 主动探测连接
	HealthCheck(ctx context.Context) error
	// IsHealthy 最近一次探测的结果
	IsHealthy() bool
	Name() string
}

// TypedConnector 暴露具体客户端类型
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// NATSConnector NATS 连接器
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}

// SQLConnector 基于 GORM 的 SQL 连接器，驱动由 SQLConfig.Driver 决定
type SQLConnector interface {
	TypedConnector[*gorm.DB]
	Driver() string
}
