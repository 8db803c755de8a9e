package idem

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

// HeaderReplayed 回放的响应带有此头
const HeaderReplayed = "Idempotent-Replayed"

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// GinMiddleware 按请求头中的幂等键去重，没有该头的请求直接放行
//
// 幂等键以路由和已鉴权的调用者为作用域，不同用户使用相同的键互不影响，
// 因此应挂在鉴权中间件之后。只缓存 2xx 响应。
func (i *Idem) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(i.cfg.Header)
		if raw == "" {
			c.Next()
			return
		}
		key := scopedKey(c, raw)

		data, executed, err := i.Execute(c.Request.Context(), key, func(context.Context) ([]byte, error) {
			rec := &recorder{ResponseWriter: c.Writer}
			c.Writer = rec
			c.Next()
			c.Writer = rec.ResponseWriter

			status := rec.Status()
			if status < http.StatusOK || status >= http.StatusMultipleChoices {
				return nil, nil
			}
			return json.Marshal(cachedResponse{
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
		})
		switch {
		case executed:
			if err != nil {
				i.logger.ErrorContext(c.Request.Context(), "failed to record idem response", clog.String("key", key), clog.Error(err))
			}
		case err == nil:
			i.logger.DebugContext(c.Request.Context(), "idem replay", clog.String("key", key))
			writeCached(c, data, i.logger)
		case xerrors.Is(err, ErrConcurrentRequest):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"Error": "A request with this idempotency key is in progress"})
		default:
			i.logger.ErrorContext(c.Request.Context(), "idem store unavailable", clog.String("key", key), clog.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"Error": "Idempotency store unavailable"})
		}
	}
}

func scopedKey(c *gin.Context, raw string) string {
	subject := "-"
	if id, ok := auth.GetIdentity(c); ok {
		subject = id.Subject
	}
	return c.FullPath() + ":" + subject + ":" + raw
}

func writeCached(c *gin.Context, data []byte, logger clog.Logger) {
	var resp cachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.ErrorContext(c.Request.Context(), "corrupt idem record", clog.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"Error": "Corrupt idempotency record"})
		return
	}
	c.Header(HeaderReplayed, "true")
	c.Data(resp.Status, resp.ContentType, resp.Body)
	c.Abort()
}

type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
