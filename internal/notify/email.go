package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
)

// EmailConfig configures the SMTP channel
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// To is used when a notification carries no email destination
	To string
}

// sendFunc matches smtp.SendMail
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel sends plain text alert emails
type EmailChannel struct {
	cfg  EmailConfig
	send sendFunc
}

// NewEmailChannel validates cfg and returns an email channel
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("email host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("email sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailChannel{cfg: cfg, send: smtp.SendMail}, nil
}

// Name implements Channel
func (*EmailChannel) Name() string { return ChannelEmail }

// Notify implements monitor.Notifier. smtp.SendMail has no context support,
// so cancellation is only checked before sending.
func (e *EmailChannel) Notify(ctx context.Context, n monitor.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to := e.cfg.To
	if strings.Contains(n.Destination, "@") {
		to = n.Destination
	}
	if to == "" {
		return fmt.Errorf("no email recipient configured")
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	msg := buildMessage(e.cfg.From, to, Subject(n), Body(n), time.Now())
	if err := e.send(addr, auth, e.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
