// Package mail provides the interchangeable delivery transports: a local
// SMTP relay and a transactional HTTP API. Exactly one is active per
// deployment; neither performs retries on its own.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"DailyDigest/internal/config"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/ports"
)

// SMTPTransport delivers through a local or networked SMTP relay.
type SMTPTransport struct {
	host     string
	port     int
	from     string
	username string
	password string
	send     func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

var _ ports.DeliveryTransport = (*SMTPTransport)(nil)

// NewSMTPTransport wires relay coordinates from configuration.
func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{
		host:     cfg.Host,
		port:     cfg.Port,
		from:     cfg.From,
		username: cfg.Username,
		password: cfg.Password,
		send:     smtp.SendMail,
	}
}

// Name identifies the transport in routing tables and cost entries.
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Send relays the digest to all recipients in a single message.
func (t *SMTPTransport) Send(ctx context.Context, d domain.Deliverable) error {
	if t.host == "" || t.from == "" {
		return &domain.ProviderError{
			Provider: t.Name(),
			Err:      fmt.Errorf("smtp transport misconfigured"),
		}
	}
	if len(d.Recipients) == 0 {
		return &domain.ProviderError{
			Provider: t.Name(),
			Err:      fmt.Errorf("no recipients configured"),
		}
	}
	if err := ctx.Err(); err != nil {
		return &domain.ProviderError{Provider: t.Name(), Err: err}
	}

	var auth smtp.Auth
	if t.username != "" {
		auth = smtp.PlainAuth("", t.username, t.password, t.host)
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	msg := buildMessage(t.from, d)

	if err := t.send(addr, auth, t.from, d.Recipients, msg); err != nil {
		// relay connectivity is transient; a rejected auth exchange is not
		retryable := !isAuthError(err)
		return &domain.ProviderError{Provider: t.Name(), Retryable: retryable, Err: err}
	}
	return nil
}

func isAuthError(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code == 535 || protoErr.Code == 530
	}
	msg := err.Error()
	return strings.Contains(msg, "535") || strings.Contains(strings.ToLower(msg), "auth")
}

func buildMessage(from string, d domain.Deliverable) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(d.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", d.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if d.HTML != "" {
		boundary := "digest-boundary"
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, d.Text)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, d.HTML)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	} else {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(d.Text)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
