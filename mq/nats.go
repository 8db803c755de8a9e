package mq

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/trace"
	"github.com/ceyewan/gacha/xerrors"
)

const (
	MetricMessages       = "mq_messages_total"
	MetricHandleDuration = "mq_handle_duration_seconds"
)

// ErrNotConnected 连接器尚未连接
var ErrNotConnected = xerrors.New("mq: nats connection is not established")

type natsClient struct {
	conn     *nats.Conn
	cfg      Config
	guard    *breaker.Guard
	guardKey string
	logger   clog.Logger

	messages metrics.Counter
	duration metrics.Histogram
}

// New 基于已连接的 NATS 连接器创建客户端
func New(conn connector.NATSConnector, cfg *Config, opts ...Option) (Client, error) {
	if conn == nil || conn.GetClient() == nil {
		return nil, ErrNotConnected
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	o := newOptions(opts)

	guard := o.guard
	if guard == nil {
		var err error
		guard, err = breaker.NewGuard(nil, breaker.WithLogger(o.logger), breaker.WithMeter(o.meter))
		if err != nil {
			return nil, err
		}
	}

	messages, err := o.meter.Counter(MetricMessages, "Messages published or handled")
	if err != nil {
		return nil, err
	}
	duration, err := o.meter.Histogram(MetricHandleDuration, "Message handler duration", metrics.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &natsClient{
		conn:     conn.GetClient(),
		cfg:      c,
		guard:    guard,
		guardKey: "nats:" + conn.Name(),
		logger:   o.logger,
		messages: messages,
		duration: duration,
	}, nil
}

func (c *natsClient) subject(s string) string {
	return c.cfg.SubjectPrefix + s
}

// Publish 发布消息并注入 trace 头
func (c *natsClient) Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error {
	o := publishOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	full := c.subject(subject)

	ctx, span, traceHeaders := trace.StartProducerSpan(ctx, trace.MessagingMeta{
		System:      trace.MessagingSystemNATS,
		Destination: full,
		Operation:   trace.MessagingOperationPublish,
	})
	defer span.End()

	msg := &nats.Msg{Subject: full, Data: data, Header: nats.Header{}}
	for k, v := range o.headers {
		msg.Header.Set(k, v)
	}
	for k, v := range traceHeaders {
		msg.Header.Set(k, v)
	}

	_, err := c.guard.Execute(ctx, c.guardKey, func() (any, error) {
		return nil, c.conn.PublishMsg(msg)
	})
	result := "success"
	if err != nil {
		result = "error"
		trace.MarkSpanError(span, err)
		c.logger.WarnContext(ctx, "publish failed", clog.String("subject", full), clog.Error(err))
		err = xerrors.Wrapf(err, "publish %s", full)
	}
	c.messages.Inc(ctx, metrics.L("subject", full), metrics.L("operation", "publish"), metrics.L("result", result))
	return err
}

// Subscribe 订阅主题，handler 在 NATS 的回调协程中串行执行
func (c *natsClient) Subscribe(ctx context.Context, subject string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	o := subscribeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	full := c.subject(subject)
	base := context.WithoutCancel(ctx)

	cb := func(m *nats.Msg) {
		headers := headersFromNATS(m.Header)
		msgCtx, span := trace.StartConsumerSpan(base, headers, trace.MessagingMeta{
			System:      trace.MessagingSystemNATS,
			Destination: m.Subject,
			Operation:   trace.MessagingOperationProcess,
		})
		defer span.End()

		start := time.Now()
		err := handler(msgCtx, &message{ctx: msgCtx, subject: m.Subject, data: m.Data, headers: headers})
		result := "success"
		if err != nil {
			result = "error"
			trace.MarkSpanError(span, err)
			c.logger.ErrorContext(msgCtx, "message handler failed", clog.String("subject", m.Subject), clog.Error(err))
		}
		c.messages.Inc(msgCtx, metrics.L("subject", full), metrics.L("operation", "handle"), metrics.L("result", result))
		c.duration.Record(msgCtx, time.Since(start).Seconds(), metrics.L("subject", full))
	}

	var (
		sub *nats.Subscription
		err error
	)
	if o.queueGroup != "" {
		sub, err = c.conn.QueueSubscribe(full, o.queueGroup, cb)
	} else {
		sub, err = c.conn.Subscribe(full, cb)
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "subscribe %s", full)
	}
	c.logger.Info("subscribed", clog.String("subject", full), clog.String("queue", o.queueGroup))
	return sub, nil
}

// Close 连接由连接器管理
func (c *natsClient) Close() error {
	return nil
}

func headersFromNATS(h nats.Header) Headers {
	if len(h) == 0 {
		return Headers{}
	}
	out := make(Headers, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
