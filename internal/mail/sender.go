// Package mail renders notification emails and hands them to a transport.
package mail

import (
	"context"
	"errors"

	"github.com/wiki-engagement/internal/logging"
)

// ErrTransportUnavailable means the transport is refusing all sends for now.
// The scheduler treats it as a tick-level failure and backs off.
var ErrTransportUnavailable = errors.New("mail transport unavailable")

// Sender delivers one email. Failures are reported, never retried by the sender.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogSender logs emails instead of delivering them; used when no SMTP host is configured
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogSender{logger: logger.WithField("component", "mail")}
}

// Send logs the email
func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"to":      to,
		"subject": subject,
		"bytes":   len(htmlBody),
	}).Info("Email delivery skipped, no SMTP host configured")
	return nil
}
