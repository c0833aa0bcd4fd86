// Package mail is the notification collaborator: it renders and delivers
// the account-security emails. Delivery failures are reported as ordinary
// errors; nothing in this package panics across the boundary.
package mail

import (
	"fmt"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/gomail.v2"

	"github.com/shelfcircle/shelfcircle/config"
)

type Kind string

const (
	KindPasswordResetRequest Kind = "password-reset-request"
	KindPasswordChanged      Kind = "password-changed-confirmation"
	KindEmailChangeRequest   Kind = "email-change-request"
	KindEmailChanged         Kind = "email-changed-confirmation"
)

// Data carries the template context. ActionURL embeds the raw token value
// for the request kinds; OldEmail is set only for KindEmailChanged.
type Data struct {
	Username  string
	ActionURL string
	OldEmail  string
	NewEmail  string
}

type Mailer interface {
	Send(kind Kind, to string, data Data) error
}

// SMTPMailer delivers over SMTP with an HTML body and a plain-text
// alternative.
type SMTPMailer struct {
	cfg config.MailConfig
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(kind Kind, to string, data Data) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mail delivery panicked: %v", p)
		}
	}()

	subject, text, html, err := render(kind, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}
	return nil
}

// LogMailer is the development transport: it renders the message and writes
// it to the application log instead of sending it.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(kind Kind, to string, data Data) error {
	subject, text, _, err := render(kind, data)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"kind":    kind,
		"to":      to,
		"subject": subject,
	}).Info("Mail (log driver)")
	logrus.Debug(text)
	return nil
}

// New returns the mailer selected by the config driver.
func New(cfg config.MailConfig) Mailer {
	if cfg.Driver == "smtp" {
		return NewSMTPMailer(cfg)
	}
	return NewLogMailer()
}
