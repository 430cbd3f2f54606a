// Package email delivers one-time codes to account holders over SMTP.
package email

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// Mailer sends verification and reset codes through a single SMTP
// relay.  Sends are synchronous; the auth flows depend on delivery
// failures surfacing before any account state is persisted.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer configures an SMTP mailer.  The connection is dialed per
// send, which is fine at auth-endpoint volumes and avoids holding an
// idle relay connection.
func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

// SendVerificationCode emails a signup verification code.
func (m *Mailer) SendVerificationCode(to, firstName, code string) error {
	subject := "Verify your email address"
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour verification code is %s. It expires in 15 minutes.\r\n\r\nIf you did not create this account, you can ignore this message.\r\n",
		firstName, code)
	return m.send(to, subject, body)
}

// SendPasswordResetCode emails a password reset code.
func (m *Mailer) SendPasswordResetCode(to, firstName, code string) error {
	subject := "Reset your password"
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour password reset code is %s. It expires in 15 minutes.\r\n\r\nIf you did not request a reset, you can ignore this message.\r\n",
		firstName, code)
	return m.send(to, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
