package mail

import (
	"context"
	"sync"

	auth "github.com/goliatone/go-totp-auth"
)

// LogSender records messages instead of delivering them
type LogSender struct {
	logger auth.Logger
	mu     sync.Mutex
	sent   []auth.Message
}

var _ auth.Mailer = (*LogSender)(nil)

func NewLogSender(logger auth.Logger) *LogSender {
	if logger == nil {
		logger = auth.NopLogger{}
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, msg auth.Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()

	l.logger.Info("mail to=%s subject=%q bytes=%d", msg.To, msg.Subject, len(msg.HTML))
	return nil
}

// Sent returns a copy of every message seen so far
func (l *LogSender) Sent() []auth.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]auth.Message(nil), l.sent...)
}
