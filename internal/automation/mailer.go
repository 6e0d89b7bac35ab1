package automation

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// SMTPMailer sends mail through a STARTTLS SMTP relay using static
// credentials from the environment.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(server string, port int, email, password string) *SMTPMailer {
	if email == "" || password == "" {
		return &SMTPMailer{}
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(server, port, email, password),
		from:   email,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.dialer == nil {
		return fmt.Errorf("SMTP credentials not configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
