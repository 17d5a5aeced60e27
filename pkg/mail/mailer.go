package mail

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Message represents an outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogMailer writes messages to a logger instead of delivering them. It is used
// when SMTP is disabled so local setups can still follow verification links.
type LogMailer struct {
	log  *zap.Logger
	from string
}

// NewLogMailer returns a LogMailer. A nil logger discards output.
func NewLogMailer(log *zap.Logger, from string) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log, from: strings.TrimSpace(from)}
}

// Send logs the message. It fails only when there is no recipient.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("mail: at least one recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.from
	}

	m.log.Info("outbound email",
		zap.String("from", from),
		zap.Strings("to", recipients),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
