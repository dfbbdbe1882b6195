// Package notify defines the outbound notification boundary. The core treats
// any error from Send as a delivery failure: recorded, never retried within
// the same run.
package notify

import (
	"context"
	"log/slog"
)

// Sender dispatches one message to one recipient.
type Sender interface {
	Send(ctx context.Context, toAddress, toName, subject, body string) error
}

// LogSender writes messages to the structured log instead of a real
// transport. Default wiring for development and the fallback when no mail
// provider is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, toAddress, toName, subject, _ string) error {
	s.logger.InfoContext(ctx, "notification dispatched",
		"to", toAddress,
		"name", toName,
		"subject", subject,
	)
	return nil
}
