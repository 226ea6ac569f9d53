package events

import (
	"context"
	"log/slog"
	"time"
)

// ChannelPublisher buffers events on a channel for the worker to drain. When
// the buffer is full the event is dropped rather than blocking a signature.
type ChannelPublisher struct {
	outbox chan Event
	logger *slog.Logger
}

func NewChannelPublisher(buffer int, logger *slog.Logger) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelPublisher{outbox: make(chan Event, buffer), logger: logger}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.outbox <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "event buffer full, dropping event",
			"kind", event.Kind, "document", event.ReadableID)
		return nil
	}
}

// Outbox exposes the channel for the worker.
func (p *ChannelPublisher) Outbox() <-chan Event { return p.outbox }

// Sink delivers a drained event to its destination (Kafka, mailer, tests).
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log, for deployments without a
// broker.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, event Event) error {
	s.Logger.InfoContext(ctx, "domain event",
		"kind", event.Kind, "document", event.ReadableID,
		"previous", event.Previous, "next", event.Next)
	return nil
}

// Worker drains the channel publisher into a sink. Delivery failures are
// logged and skipped so one bad event never stalls the stream.
type Worker struct {
	inbox  <-chan Event
	sink   Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, sink Sink, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{inbox: inbox, sink: sink, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Deliver(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to deliver event",
					"kind", event.Kind, "document", event.ReadableID, "error", err)
			}
		}
	}
}
