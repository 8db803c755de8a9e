package db

import (
	"strings"

	"github.com/ceyewan/gacha/xerrors"
)

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("db: invalid config")

	// ErrConnectorRequired SQL 连接器未提供或未连接
	ErrConnectorRequired = xerrors.New("db: connected sql connector is required")
)

// 驱动未做错误翻译时的兜底匹配
var uniqueViolationHints = []string{
	"UNIQUE constraint failed", // sqlite
	"Duplicate entry",          // mysql
	"duplicate key value",      // postgres
}

func containsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, hint := range uniqueViolationHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
