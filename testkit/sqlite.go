package testkit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/db"
)

// NewSQLiteConfig 返回独立命名的内存数据库配置，测试之间互不可见
func NewSQLiteConfig() *connector.SQLConfig {
	return &connector.SQLConfig{
		Name:   "test-sqlite",
		Driver: connector.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", NewID()),
	}
}

// NewSQLiteConnector 获取 SQLite 连接器（内存数据库），生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.SQLConnector {
	t.Helper()
	conn, err := connector.NewSQL(NewSQLiteConfig(), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")

	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewDB 获取内存数据库上的 db 组件，并按 models 建表
func NewDB(t *testing.T, models ...any) db.DB {
	t.Helper()
	database, err := db.New(NewSQLiteConnector(t), &db.Config{LogLevel: "error"}, db.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create db")
	if len(models) > 0 {
		require.NoError(t, database.AutoMigrate(context.Background(), models...))
	}
	return database
}
