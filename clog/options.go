package clog

import (
	"context"
	"io"
)

// ContextField 描述如何从 Context 中提取一个字段
type ContextField struct {
	Key       any    // Context 中的 key
	FieldName string // 输出的字段名
}

type options struct {
	namespaceParts []string
	contextFields  []ContextField
	writer         io.Writer
}

// Option Logger 选项
type Option func(*options)

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithNamespace 设置根命名空间
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 从 Context 中提取指定 key 的值作为日志字段
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithStandardContext 提取 request_id 与 user_id
//
// 配合 WithRequestID / WithUserID 使用。
func WithStandardContext() Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields,
			ContextField{Key: requestIDKey{}, FieldName: "request_id"},
			ContextField{Key: userIDKey{}, FieldName: "user_id"},
		)
	}
}

// WithWriter 覆盖 Config.Output，主要用于测试
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

type (
	requestIDKey struct{}
	userIDKey    struct{}
)

// WithRequestID 将请求 ID 写入 Context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom 读取请求 ID，不存在时返回空串
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithUserID 将已认证用户写入 Context
func WithUserID(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userIDKey{}, user)
}
