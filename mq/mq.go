// Package mq 基于 NATS Core 的发布订阅，用于服务间的异步通知（发后即忘）。
//
//	client, _ := mq.New(natsConn, &mq.Config{}, mq.WithLogger(logger), mq.WithGuard(guard))
//	_ = client.Publish(ctx, "gacha.deleted", data)
//
//	sub, _ := client.Subscribe(ctx, "gacha.deleted", func(ctx context.Context, msg mq.Message) error {
//	    return purge(ctx, msg.Data())
//	}, mq.WithQueueGroup("profile"))
//	defer sub.Unsubscribe()
//
// Publish 会把当前 trace 写入消息头，消费侧以 Span Link 关联上游。
// 发布经过 breaker.Guard，NATS 故障时快速失败而不是阻塞请求。
package mq

import (
	"context"
	"maps"
)

// Headers 消息元数据
type Headers map[string]string

// Clone 返回 Headers 的拷贝
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	clone := make(Headers, len(h))
	maps.Copy(clone, h)
	return clone
}

// Get 不存在返回空字符串
func (h Headers) Get(key string) string {
	return h[key]
}

// Message 收到的消息
type Message interface {
	// Context 消费上下文，携带消费 Span
	Context() context.Context
	Subject() string
	Data() []byte
	// Headers 返回副本
	Headers() Headers
}

// Handler 消息处理函数，返回的错误只记录日志，Core 模式没有重投
type Handler func(ctx context.Context, msg Message) error

// Subscription 订阅句柄
type Subscription interface {
	Unsubscribe() error
}

// Client MQ 组件的核心能力
type Client interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error
	Subscribe(ctx context.Context, subject string, handler Handler, opts ...SubscribeOption) (Subscription, error)
	Close() error
}

type message struct {
	ctx     context.Context
	subject string
	data    []byte
	headers Headers
}

func (m *message) Context() context.Context { return m.ctx }
func (m *message) Subject() string          { return m.subject }
func (m *message) Data() []byte             { return m.data }
func (m *message) Headers() Headers         { return m.headers.Clone() }
