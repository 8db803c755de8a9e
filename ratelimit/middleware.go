package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MsgRateLimited 429 响应文本
const MsgRateLimited = "rate limit exceeded"

// GinMiddleware 创建 Gin 限流中间件，keyFunc 为 nil 时使用客户端 IP
//
// 限流器出错时放行，避免影响业务。
func GinMiddleware(limiter *Limiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil || allowed {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": MsgRateLimited})
	}
}
