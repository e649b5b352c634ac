package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/ads-users/internal/config"
)

// RabbitMQ holds a broker connection and a publishing channel.
type RabbitMQ struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRabbitMQ dials the broker, retrying with a growing delay, and declares the
// topic exchange user events are published to.
func NewRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, exchange string, logger *zap.Logger) (*RabbitMQ, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	retryDelay := time.Second

	mq := &RabbitMQ{logger: logger}
	for attempt := 1; ; attempt++ {
		err := mq.connect(cfg.URL())
		if err == nil {
			break
		}
		logger.Warn("rabbitmq connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))
		if attempt >= maxRetries {
			return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		}
	}

	if err := mq.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		mq.Close()
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}

	logger.Info("connected to rabbitmq", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return mq, nil
}

func (mq *RabbitMQ) connect(url string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	mq.mu.Lock()
	mq.conn = conn
	mq.ch = ch
	mq.mu.Unlock()
	return nil
}

// Publish sends a persistent JSON message to the exchange.
func (mq *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	mq.mu.RLock()
	ch := mq.ch
	mq.mu.RUnlock()

	if ch == nil {
		return errors.New("rabbitmq channel not available")
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(publishCtx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

// Ping reports whether the connection is still open.
func (mq *RabbitMQ) Ping(_ context.Context) error {
	if mq == nil {
		return errors.New("rabbitmq not configured")
	}
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	if mq.conn == nil || mq.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close shuts the channel and connection down once.
func (mq *RabbitMQ) Close() {
	if mq == nil {
		return
	}
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return
	}
	mq.closed = true

	if mq.ch != nil {
		_ = mq.ch.Close()
	}
	if mq.conn != nil {
		_ = mq.conn.Close()
	}
	mq.logger.Info("rabbitmq connection closed")
}
