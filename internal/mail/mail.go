// Package mail sends email through the Gmail SMTP relay.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ainventory/ainventory-server/internal/config"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Gmail SMTP relay with implicit TLS.
const (
	DefaultHost = "smtp.gmail.com"
	DefaultPort = 465
)

var (
	// ErrMissingCredentials is returned when GMAIL_USER or GMAIL_APP_PASSWORD is unset.
	ErrMissingCredentials = errors.New("GMAIL_USER y GMAIL_APP_PASSWORD requeridos en .env")
	// ErrMissingFields is returned when to, subject or body is empty.
	ErrMissingFields = errors.New("Falta: to, subject, body")
)

// Message is an outgoing email. Cc and Bcc are comma-separated lists.
type Message struct {
	To       string
	Subject  string
	Body     string
	HTMLBody string
	Cc       string
	Bcc      string
}

// Result is the tool-facing outcome of a send.
type Result struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	To      *string `json:"to,omitempty"`
	Subject string  `json:"subject,omitempty"`
	Error   string  `json:"error,omitempty"`

	// echoTo makes MarshalJSON emit "to" even when To is nil.
	echoTo bool
}

// MarshalJSON renders "to" as null on failures that echo an absent
// recipient.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	if r.To != nil || !r.echoTo {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		To *string `json:"to"`
	}{plain: plain(r)})
}

// Failure returns the error text of an unsuccessful send.
func (r Result) Failure() string {
	if r.Success {
		return ""
	}
	return r.Error
}

// Dialer delivers a built message with the given account.
type Dialer interface {
	DialAndSend(ctx context.Context, account config.GmailConfig, msg *gomail.Msg) error
}

type smtpDialer struct {
	host string
	port int
}

func (d smtpDialer) DialAndSend(ctx context.Context, account config.GmailConfig, msg *gomail.Msg) error {
	client, err := gomail.NewClient(d.host,
		gomail.WithPort(d.port),
		gomail.WithSSL(),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(account.User),
		gomail.WithPassword(account.AppPassword),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Sender sends messages using credentials resolved on every call.
type Sender struct {
	provider config.Provider
	dialer   Dialer
	logger   *zap.Logger
}

// Option customizes a Sender.
type Option func(*Sender)

// WithDialer replaces the SMTP delivery.
func WithDialer(d Dialer) Option {
	return func(s *Sender) {
		s.dialer = d
	}
}

// WithServer points the default SMTP delivery at another relay.
func WithServer(host string, port int) Option {
	return func(s *Sender) {
		s.dialer = smtpDialer{host: host, port: port}
	}
}

// NewSender creates a Sender that relays through Gmail unless overridden.
func NewSender(provider config.Provider, logger *zap.Logger, opts ...Option) *Sender {
	s := &Sender{
		provider: provider,
		dialer:   smtpDialer{host: DefaultHost, port: DefaultPort},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers m. Failures are reported in the Result, never as a panic or
// error return.
func (s *Sender) Send(ctx context.Context, m Message) Result {
	account := s.provider.Gmail()
	if account.User == "" || account.AppPassword == "" {
		return failure("Error al enviar email: "+ErrMissingCredentials.Error(), recipient(m.To))
	}

	if m.To == "" || m.Subject == "" || m.Body == "" {
		return Result{Success: false, Error: ErrMissingFields.Error()}
	}

	msg, err := BuildMessage(account.User, m)
	if err != nil {
		return failure(err.Error(), recipient(m.To))
	}

	if err := s.dialer.DialAndSend(ctx, account, msg); err != nil {
		s.logger.Warn("email delivery failed",
			zap.String("to", m.To),
			zap.Error(err),
		)
		return failure(err.Error(), recipient(m.To))
	}

	s.logger.Info("email sent",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
	)
	to := m.To
	return Result{
		Success: true,
		Message: "Email enviado",
		To:      &to,
		Subject: m.Subject,
	}
}

// failure builds an unsuccessful Result that always carries "to", null
// when to is nil.
func failure(msg string, to *string) Result {
	return Result{Success: false, Error: msg, To: to, echoTo: true}
}

func recipient(to string) *string {
	if to == "" {
		return nil
	}
	return &to
}

// BuildMessage assembles a multipart/alternative message: the plain body
// first and, when present, the HTML body as the preferred alternative.
// Bcc recipients are envelope-only.
func BuildMessage(from string, m Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(SplitAddresses(m.To)...); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	if cc := SplitAddresses(m.Cc); len(cc) > 0 {
		if err := msg.Cc(cc...); err != nil {
			return nil, fmt.Errorf("invalid cc address: %w", err)
		}
	}
	if bcc := SplitAddresses(m.Bcc); len(bcc) > 0 {
		if err := msg.Bcc(bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc address: %w", err)
		}
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	if m.HTMLBody != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, m.HTMLBody)
	}
	return msg, nil
}

// SplitAddresses splits a comma-separated address list, dropping blanks.
func SplitAddresses(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
