// internal/mail/mailer.go
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Message is one outbound email. Either Template+Data or HTML must be
// set; Template wins when both are present.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
	HTML     string
}

// Mailer delivers email. Failures surface as catchable errors and are
// never fatal to the caller.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail over plain SMTP.
type SMTPMailer struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewSMTPMailer creates a mailer for the given SMTP endpoint.
func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from}
}

// Send renders the message and delivers it.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	subject, html, err := render(msg)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString("From: " + m.from + "\r\n")
	body.WriteString("To: " + msg.To + "\r\n")
	body.WriteString("Subject: " + subject + "\r\n")
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	body.WriteString("\r\n")
	body.WriteString(html)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := smtp.SendMail(addr, auth, m.from, []string{msg.To}, []byte(body.String())); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer is used when no SMTP host is configured: it logs instead
// of sending, so local setups work without a mail server.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	subject, _, err := render(msg)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"to":       msg.To,
		"subject":  subject,
		"template": msg.Template,
	}).Info("email delivery skipped (no SMTP host configured)")
	return nil
}

func render(msg Message) (subject, html string, err error) {
	if msg.Template != "" {
		return renderTemplate(msg.Template, msg.Subject, msg.Data)
	}
	if msg.HTML != "" {
		return msg.Subject, msg.HTML, nil
	}
	return "", "", fmt.Errorf("no valid email content provided")
}
