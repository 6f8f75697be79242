package jobs

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends plain-text mail over SMTP without authentication, which is
// all the internal relay requires.
type Mailer struct {
	addr string
	from string
}

// NewMailer constructs a Mailer for the given SMTP host and port.
func NewMailer(host string, port int, from string) *Mailer {
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one message.
func (m *Mailer) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("jobs: send mail to %s: %w", to, err)
	}
	return nil
}
