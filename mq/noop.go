package mq

import "context"

// Discard 返回丢弃所有消息的客户端，未配置 NATS 时使用
func Discard() Client { return noopClient{} }

type noopClient struct{}

func (noopClient) Publish(context.Context, string, []byte, ...PublishOption) error { return nil }

func (noopClient) Subscribe(context.Context, string, Handler, ...SubscribeOption) (Subscription, error) {
	return noopSubscription{}, nil
}

func (noopClient) Close() error { return nil }

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() error { return nil }
