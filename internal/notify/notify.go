// Package notify is the single channel through which sync operations report
// user-visible outcomes. Callers decide how notifications are shown.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/models"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Notification struct {
	Level          Level  `json:"level"`
	Title          string `json:"title"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

func Error(title string, err error, conversationID models.ID) Notification {
	n := Notification{Level: LevelError, Title: title, Message: err.Error()}
	if !conversationID.IsZero() {
		n.ConversationID = conversationID.String()
	}
	return n
}

func Info(title, message string) Notification {
	return Notification{Level: LevelInfo, Title: title, Message: message}
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	fields := []zap.Field{zap.String("message", n.Message)}
	if n.ConversationID != "" {
		fields = append(fields, zap.String("conversation_id", n.ConversationID))
	}
	switch n.Level {
	case LevelError:
		l.logger.Error(n.Title, fields...)
	case LevelWarn:
		l.logger.Warn(n.Title, fields...)
	default:
		l.logger.Info(n.Title, fields...)
	}
}

type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}
