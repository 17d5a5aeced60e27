package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/pkg/mail"
)

const (
	verificationSubject  = "Verify your email to activate your account."
	passwordResetSubject = "Your password reset request link."
)

// Notifier composes and sends account emails.
type Notifier struct {
	mailer      mail.Mailer
	from        string
	frontendURL string
}

// NewNotifier constructs a Notifier. Links in emails point at frontendURL.
func NewNotifier(mailer mail.Mailer, from, frontendURL string) (*Notifier, error) {
	if mailer == nil {
		return nil, errors.New("notifier: mailer is required")
	}
	return &Notifier{
		mailer:      mailer,
		from:        strings.TrimSpace(from),
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
	}, nil
}

// SendVerification emails the verification link for token to the user.
func (n *Notifier) SendVerification(ctx context.Context, user *models.User, token string) error {
	body := "Please follow the link below to verify your email to activate your account.\n" +
		n.link("/auth/verify", token)
	return n.send(ctx, user, verificationSubject, body)
}

// SendPasswordReset emails the password reset link for token to the user.
func (n *Notifier) SendPasswordReset(ctx context.Context, user *models.User, token string) error {
	body := "You requested a password reset on our website. Please find the link below to be able to reset your password.\n" +
		n.link("/auth/reset", token)
	return n.send(ctx, user, passwordResetSubject, body)
}

func (n *Notifier) send(ctx context.Context, user *models.User, subject, body string) error {
	return n.mailer.Send(ctx, mail.Message{
		From:    n.from,
		To:      []string{user.Email},
		Subject: subject,
		Body:    body,
	})
}

func (n *Notifier) link(path, token string) string {
	return n.frontendURL + path + "?token=" + url.QueryEscape(token)
}
