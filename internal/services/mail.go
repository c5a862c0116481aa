package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"briefbot/internal/template"
)

// SMTPConfig configures the outbound mail collaborator.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailService implements the gmail collaborator over plain SMTP. Delivery is
// the fatal step class, so an unconfigured or failing send must surface as an
// error, never be swallowed.
type MailService struct {
	cfg  SMTPConfig
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailService creates the mail collaborator.
func NewMailService(cfg SMTPConfig) *MailService {
	return &MailService{cfg: cfg, send: smtp.SendMail}
}

// Call implements Service.
func (s *MailService) Call(ctx context.Context, operation string, params map[string]any) (any, error) {
	if operation != "send" {
		return nil, fmt.Errorf("unknown gmail operation %q", operation)
	}
	if s.cfg.Host == "" {
		return nil, fmt.Errorf("gmail.send: SMTP is not configured")
	}

	to := template.Stringify(params["to"])
	subject := template.Stringify(params["subject"])
	body := template.Stringify(params["body"])
	if to == "" {
		return nil, fmt.Errorf("gmail.send: empty recipient")
	}

	recipients := splitRecipients(to)
	msg := buildMessage(s.cfg.From, recipients, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, recipients, msg); err != nil {
		return nil, fmt.Errorf("gmail.send: %w", err)
	}

	return map[string]any{"sent": true, "to": recipients, "subject": subject}, nil
}

func splitRecipients(to string) []string {
	parts := strings.FieldsFunc(to, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if addr := strings.TrimSpace(p); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
