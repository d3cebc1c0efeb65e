package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ritera/royalty-engine/royalty"
)

// Log writes messages to the logger instead of sending them.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, msg royalty.Message) error {
	l.log.Info("mail",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
