// Package mail delivers outbound email over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Message is a single outbound email.
type Message struct {
	ToEmail  string
	Subject  string
	TextBody string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings configure the SMTP relay. TLSMode is one of "tls",
// "starttls" (default) or "none".
type SMTPSettings struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TLSMode     string
	FromName    string
	FromEmail   string
	DialTimeout time.Duration
}

// SMTPSender sends messages through one SMTP connection per message.
type SMTPSender struct {
	settings SMTPSettings
}

func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	if settings.DialTimeout <= 0 {
		settings.DialTimeout = 10 * time.Second
	}
	return &SMTPSender{settings: settings}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(s.settings.Host) == "" {
		return fmt.Errorf("smtp host not configured")
	}
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.settings.Username != "" {
		auth := smtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.settings.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := client.Rcpt(msg.ToEmail); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	from := s.settings.FromEmail
	if s.settings.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.settings.FromName, s.settings.FromEmail)
	}
	if _, err := writer.Write([]byte(BuildMessage(from, msg.ToEmail, msg.Subject, msg.TextBody))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func (s *SMTPSender) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	tlsConfig := &tls.Config{ServerName: s.settings.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: s.settings.DialTimeout}

	mode := s.settings.TLSMode
	if mode == "" {
		mode = "starttls"
	}

	var (
		conn net.Conn
		err  error
	)
	if mode == "tls" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.settings.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if mode == "starttls" {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

// BuildMessage renders a plain text RFC 5322 message.
func BuildMessage(from, to, subject, body string) string {
	lines := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}
	return strings.Join(lines, "\r\n")
}
