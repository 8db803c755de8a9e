package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

// IdentityKey gin.Context 中存放 *Identity 的 key
const IdentityKey = "auth:identity"

// 错误响应文本与下游客户端约定，不要修改
const (
	MsgMissingHeader    = "Missing Authorization header"
	MsgTokenExpired     = "Token expired"
	MsgInvalidToken     = "Invalid token"
	MsgSubjectMismatch  = "Username in token does not match the request username"
	headerAuthorization = "Authorization"
)

// GinMiddleware 校验 Authorization 头并把 Identity 写入上下文
//
// audience 为空时使用 Config.Audience。
func (v *Verifier) GinMiddleware(audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(headerAuthorization)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MsgMissingHeader})
			return
		}

		id, err := v.Verify(c.Request.Context(), BearerToken(header), audience)
		if err != nil {
			msg := MsgInvalidToken
			if xerrors.KindOf(err) == xerrors.KindTokenExpired {
				msg = MsgTokenExpired
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(IdentityKey, id)
		c.Request = c.Request.WithContext(clog.WithUserID(c.Request.Context(), id.Subject))
		c.Next()
	}
}

// RequireSubjectQuery 要求查询参数 key 与令牌 sub 一致，需放在 GinMiddleware 之后
func RequireSubjectQuery(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !RequireSubject(c, c.Query(key)) {
			return
		}
		c.Next()
	}
}

// RequireSubject 在 handler 内检查用户名，不一致时写入 403 并返回 false
func RequireSubject(c *gin.Context, username string) bool {
	id, _ := GetIdentity(c)
	if err := Authorize(id, username); err != nil {
		if xerrors.Is(err, ErrSubjectMismatch) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": MsgSubjectMismatch})
		} else {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MsgInvalidToken})
		}
		return false
	}
	return true
}

// GetIdentity 从 gin.Context 读取 Identity
func GetIdentity(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}
