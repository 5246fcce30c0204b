package notify

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const Topic = "notifications"

// Publisher sends notifications as JSON watermill messages.
type Publisher struct {
	publisher message.Publisher
	logger    *zap.Logger
}

func NewPublisher(publisher message.Publisher, logger *zap.Logger) *Publisher {
	return &Publisher{publisher: publisher, logger: logger}
}

func (p *Publisher) Notify(_ context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Error("failed to encode notification", zap.Error(err))
		return
	}
	if err := p.publisher.Publish(Topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		p.logger.Error("failed to publish notification", zap.Error(err), zap.String("title", n.Title))
	}
}

// NewGoChannel builds an in-process pub/sub for notifications.
func NewGoChannel(logger *zap.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewWatermillLogger(logger))
}

// Subscribe decodes notifications from topic until ctx is done. Undecodable
// messages are acked and skipped.
func Subscribe(ctx context.Context, subscriber message.Subscriber, logger *zap.Logger) (<-chan Notification, error) {
	msgs, err := subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Notification)
	go func() {
		defer close(out)
		for msg := range msgs {
			var n Notification
			if err := json.Unmarshal(msg.Payload, &n); err != nil {
				logger.Warn("dropping malformed notification", zap.String("uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			select {
			case out <- n:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

type watermillLogger struct {
	logger *zap.Logger
}

// NewWatermillLogger adapts zap to watermill's logger interface.
func NewWatermillLogger(logger *zap.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error(msg, append(toZap(fields), zap.Error(err))...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Info(msg, toZap(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, toZap(fields)...)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, toZap(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger.With(toZap(fields)...)}
}

func toZap(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
