package mailer

import (
	"fmt"
	"io"

	gomail "gopkg.in/gomail.v2"

	"github.com/noah-isme/face-attendance-api/pkg/config"
)

// Mailer sends plain text emails over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// New constructs a Mailer from the SMTP configuration.
func New(cfg config.MailConfig) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send delivers a single message. Each call dials a fresh SMTP
// connection; the notifier queue paces the volume.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// SendWithAttachment delivers a message with a single file attachment.
func (m *Mailer) SendWithAttachment(to, subject, body, filename string, attachment []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.Attach(filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(attachment)
		return err
	}))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
