package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ads-users/internal/events"
)

const (
	relaySendTimeout  = 5 * time.Second
	defaultRelayQueue = 256
)

// ErrRelayQueueFull is reported to the dispatcher when an event cannot be queued.
var ErrRelayQueueFull = errors.New("event relay queue full")

// EventRelayService forwards user events to an external sink. Publishing only
// queues the event; Run delivers it off the request path.
type EventRelayService struct {
	dispatcher events.Dispatcher
	sink       events.Sink
	logger     *zap.Logger
	queue      chan events.Event
}

// NewEventRelayService creates the service with a queue of bufferSize events.
func NewEventRelayService(dispatcher events.Dispatcher, sink events.Sink, logger *zap.Logger, bufferSize int) *EventRelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = defaultRelayQueue
	}
	return &EventRelayService{
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
		queue:      make(chan events.Event, bufferSize),
	}
}

// RegisterHandlers subscribes to every user event.
func (r *EventRelayService) RegisterHandlers() {
	if r.dispatcher == nil || r.sink == nil {
		return
	}
	for _, eventType := range events.UserEventTypes {
		r.dispatcher.Subscribe(eventType, r.enqueue)
	}
	r.logger.Info("event relay registered", zap.String("sink", r.sink.Name()), zap.Int("queue", cap(r.queue)))
}

// enqueue never blocks the publisher. A full queue drops the event.
func (r *EventRelayService) enqueue(_ context.Context, event events.Event) error {
	select {
	case r.queue <- event:
		return nil
	default:
		return ErrRelayQueueFull
	}
}

// Run delivers queued events until ctx is done, then flushes what is left.
func (r *EventRelayService) Run(ctx context.Context) {
	for {
		select {
		case event := <-r.queue:
			r.deliver(ctx, event)
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

func (r *EventRelayService) flush(ctx context.Context) {
	for {
		select {
		case event := <-r.queue:
			r.deliver(ctx, event)
		default:
			return
		}
	}
}

func (r *EventRelayService) deliver(ctx context.Context, event events.Event) {
	if err := r.relay(ctx, event); err != nil {
		r.logger.Warn("event relay failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func (r *EventRelayService) relay(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), relaySendTimeout)
	defer cancel()

	if err := r.sink.Send(sendCtx, event.Type, body); err != nil {
		return fmt.Errorf("%s sink: %w", r.sink.Name(), err)
	}
	r.logger.Debug("event relayed",
		zap.String("sink", r.sink.Name()),
		zap.String("event_type", string(event.Type)),
		zap.Int64("user_id", event.UserID))
	return nil
}
