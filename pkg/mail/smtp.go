package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrSMTPDisabled is returned by a mailer built from settings with Enabled unset.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

const (
	defaultSMTPTimeout = 10 * time.Second
	implicitTLSPort    = 465
)

// SMTPSettings configure delivery through a relay. With UseTLS the connection must be
// encrypted: implicit TLS on port 465, a mandatory STARTTLS elsewhere. Without it
// STARTTLS is still used when the relay offers it.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("smtp: host is required when enabled")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("smtp: port %d out of range", s.Port)
	}
	return nil
}

// session is the subset of *smtp.Client used to deliver one message.
type session interface {
	Auth(smtp.Auth) error
	Extension(string) (bool, string)
	Mail(string) error
	Rcpt(string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// SMTPMailer opens one relay connection per message.
type SMTPMailer struct {
	cfg  SMTPSettings
	dial func(ctx context.Context) (session, error)
	now  func() time.Time
}

// NewSMTPMailer validates cfg and returns a mailer for it.
func NewSMTPMailer(cfg SMTPSettings) (*SMTPMailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	m := &SMTPMailer{cfg: cfg, now: time.Now}
	m.dial = m.dialRelay
	return m, nil
}

// Send delivers msg. The whole exchange is bounded by ctx and the configured timeout.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}

	from, recipients, err := m.envelope(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	s, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := m.authenticate(s); err != nil {
		return err
	}
	if err := s.Mail(from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := s.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := s.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write(buildMessage(from, recipients, msg, m.now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: end data: %w", err)
	}
	return s.Quit()
}

// envelope resolves and validates the sender and the de-duplicated recipients.
func (m *SMTPMailer) envelope(msg Message) (string, []string, error) {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return "", nil, errors.New("smtp: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(m.cfg.From)
	}
	if from == "" {
		return "", nil, errors.New("smtp: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return "", nil, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return "", nil, fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}
	return from, recipients, nil
}

func (m *SMTPMailer) authenticate(s session) error {
	if strings.TrimSpace(m.cfg.Username) == "" {
		return nil
	}
	if ok, _ := s.Extension("AUTH"); !ok {
		return errors.New("smtp: relay does not support AUTH")
	}
	if err := s.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("smtp: auth: %w", err)
	}
	return nil
}

func (m *SMTPMailer) dialRelay(ctx context.Context) (session, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	netDialer := &net.Dialer{Timeout: m.cfg.Timeout}

	implicit := m.cfg.UseTLS && m.cfg.Port == implicitTLSPort
	var (
		conn net.Conn
		err  error
	)
	if implicit {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}
	if implicit {
		return client, nil
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: starttls: %w", err)
		}
	} else if m.cfg.UseTLS {
		_ = client.Close()
		return nil, errors.New("smtp: relay does not offer STARTTLS")
	}
	return client, nil
}

// buildMessage renders a plain-text RFC 5322 message with CRLF line endings.
func buildMessage(from string, to []string, msg Message, now time.Time) []byte {
	var b bytes.Buffer
	header := func(key, value string) {
		b.WriteString(key + ": " + value + "\r\n")
	}

	header("From", from)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject)))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domainOf(from)+">")
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

func domainOf(address string) string {
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	if _, domain, ok := strings.Cut(address, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var out []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// Transient reports whether a failed delivery may succeed if attempted again: 4xx
// replies, timeouts and dropped or refused connections. Rejections (5xx) and invalid
// addresses are permanent.
func Transient(err error) bool {
	if err == nil || errors.Is(err, ErrSMTPDisabled) {
		return false
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		return reply.Code >= 400 && reply.Code < 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}
