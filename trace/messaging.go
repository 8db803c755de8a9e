package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
	AttrMessagingOperation   = "messaging.operation"

	MessagingSystemNATS = "nats"

	MessagingOperationPublish = "publish"
	MessagingOperationProcess = "process"
)

// MessagingMeta 消息属性
type MessagingMeta struct {
	System      string
	Destination string
	Operation   string
}

func messagingAttributes(meta MessagingMeta) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, 3)
	if meta.System != "" {
		out = append(out, attribute.String(AttrMessagingSystem, meta.System))
	}
	if meta.Destination != "" {
		out = append(out, attribute.String(AttrMessagingDestination, meta.Destination))
	}
	if meta.Operation != "" {
		out = append(out, attribute.String(AttrMessagingOperation, meta.Operation))
	}
	return out
}

// StartProducerSpan 启动生产者 Span，并返回需要写入消息头的传播字段
func StartProducerSpan(ctx context.Context, meta MessagingMeta) (context.Context, oteltrace.Span, map[string]string) {
	tracer := otel.Tracer("gacha.mq")
	spanCtx, span := tracer.Start(ctx, "mq.publish "+meta.Destination,
		oteltrace.WithSpanKind(oteltrace.SpanKindProducer))
	span.SetAttributes(messagingAttributes(meta)...)

	headers := map[string]string{}
	Inject(spanCtx, headers)
	return spanCtx, span, headers
}

// StartConsumerSpan 从消息头恢复上游，以 Span Link 关联
//
// 消费是异步的，不适合把消费者挂成生产者的子 Span。
func StartConsumerSpan(ctx context.Context, headers map[string]string, meta MessagingMeta) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer("gacha.mq")
	opts := []oteltrace.SpanStartOption{oteltrace.WithSpanKind(oteltrace.SpanKindConsumer)}
	if len(headers) > 0 {
		if remote := oteltrace.SpanContextFromContext(Extract(ctx, headers)); remote.IsValid() {
			opts = append(opts, oteltrace.WithLinks(oteltrace.Link{SpanContext: remote}))
		}
	}
	spanCtx, span := tracer.Start(ctx, "mq.process "+meta.Destination, opts...)
	span.SetAttributes(messagingAttributes(meta)...)
	return spanCtx, span
}

// MarkSpanError err 非空时记录到 Span
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
