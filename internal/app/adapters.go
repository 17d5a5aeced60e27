package app

import (
	"time"

	"github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/services"
	"github.com/charlesng35/accountd/pkg/mail"
)

// TokenConfig converts AuthConfig into token issuer parameters, filling unset
// lifetimes with the package defaults.
func (c AuthConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:           c.JWT.Secret,
		Issuer:           c.JWT.Issuer,
		SessionTTL:       orDefault(c.JWT.TTL, auth.DefaultSessionTTL),
		VerificationTTL:  max(c.Verification.TTL, 0),
		PasswordResetTTL: orDefault(c.PasswordReset.TTL, auth.DefaultPasswordResetTTL),
	}
}

// CredentialConfig converts AuthConfig into CredentialService parameters.
func (c AuthConfig) CredentialConfig() auth.CredentialConfig {
	return auth.CredentialConfig{Cost: c.Hashing.Cost, Workers: c.Hashing.Workers}
}

// ResendCooldown is the minimum age of the newest verification token before login
// sends another.
func (c AuthConfig) ResendCooldown() time.Duration {
	return orDefault(c.Verification.ResendCooldown, services.DefaultResendCooldown)
}

// SMTPSettings converts EmailConfig for the SMTP mailer. The configured sender
// address is used as the envelope and header From.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     smtp.Host,
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     c.From,
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}

// SMTPRetryPolicy bounds redelivery of transient relay failures.
func (c EmailConfig) SMTPRetryPolicy() mail.RetryPolicy {
	return mail.RetryPolicy{
		Attempts:   uint64(max(c.SMTP.MaxAttempts, 1)),
		Backoff:    c.SMTP.RetryBackoff,
		MaxBackoff: 8 * c.SMTP.RetryBackoff,
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
