package events

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Sink receives encoded events for delivery outside the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, eventType EventType, body []byte) error
}

// RedisPublisher is the subset of the Redis wrapper the sink needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, body []byte) error
}

// AMQPPublisher is the subset of the RabbitMQ wrapper the sink needs.
type AMQPPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

type redisSink struct {
	client RedisPublisher
	prefix string
}

// NewRedisSink publishes each event to the pub/sub channel "<prefix>.<event_type>".
func NewRedisSink(client RedisPublisher, prefix string) Sink {
	return &redisSink{client: client, prefix: prefix}
}

func (s *redisSink) Name() string { return "redis" }

func (s *redisSink) Send(ctx context.Context, eventType EventType, body []byte) error {
	return s.client.Publish(ctx, s.prefix+"."+string(eventType), body)
}

type amqpSink struct {
	publisher AMQPPublisher
	exchange  string
}

// NewAMQPSink publishes each event to a topic exchange with routing key "user.<verb>".
func NewAMQPSink(publisher AMQPPublisher, exchange string) Sink {
	return &amqpSink{publisher: publisher, exchange: exchange}
}

func (s *amqpSink) Name() string { return "amqp" }

func (s *amqpSink) Send(ctx context.Context, eventType EventType, body []byte) error {
	return s.publisher.Publish(ctx, s.exchange, RoutingKey(eventType), body)
}

// RoutingKey maps "user_created" to "user.created".
func RoutingKey(eventType EventType) string {
	return strings.Replace(string(eventType), "_", ".", 1)
}

type logSink struct {
	logger *zap.Logger
}

// NewLogSink only logs events. Used when no broker is configured.
func NewLogSink(logger *zap.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Name() string { return "log" }

func (s *logSink) Send(_ context.Context, eventType EventType, body []byte) error {
	s.logger.Debug("user event", zap.String("event_type", string(eventType)), zap.ByteString("body", body))
	return nil
}
