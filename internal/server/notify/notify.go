// Package notify delivers password reset links to users.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// ResetMessage is the content handed to a Notifier. Link embeds the reset
// token and must not be logged.
type ResetMessage struct {
	To        string
	Name      string
	Link      string
	ExpiresIn time.Duration
}

type Notifier interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

const resetSubject = "Password Reset Request for Your Account"

var resetBody = template.Must(template.New("reset").Parse(`Hello {{.Name}},

We received a request to reset the password for {{.To}}.
Open the link below to choose a new password:

{{.Link}}

This link will expire in {{.Minutes}} minutes. If you didn't request this
change, please ignore this email.
`))

// RenderResetMessage builds the RFC 5322 message sent for msg.
func RenderResetMessage(from string, msg ResetMessage) ([]byte, error) {
	var body bytes.Buffer
	err := resetBody.Execute(&body, struct {
		ResetMessage
		Minutes int
	}{msg, int(msg.ExpiresIn / time.Minute)})
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", resetSubject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return b.Bytes(), nil
}

// SMTPConfig describes the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPNotifier sends reset mails through an SMTP relay using PLAIN auth when
// credentials are configured.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger logging.Logger
	// sendMail is a seam for testing smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg SMTPConfig, logger logging.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, logger: logger.With("module", "notify"), sendMail: smtp.SendMail}
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := RenderResetMessage(n.cfg.From, msg)
	if err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}

	var a smtp.Auth
	if n.cfg.User != "" {
		a = smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	// smtp.SendMail has no context; run it aside and stop waiting on cancel.
	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, a, n.cfg.From, []string{msg.To}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			n.logger.Error(ctx, "reset mail delivery failed", "email", msg.To, "error", err)
			return fmt.Errorf("send reset mail: %w", err)
		}
		n.logger.Info(ctx, "reset mail sent", "email", msg.To)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogNotifier records that a reset was requested without delivering it.
// Used when no SMTP relay is configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	n.logger.Warn(ctx, "no mail relay configured, reset mail not delivered",
		"email", msg.To, "expires_in", msg.ExpiresIn.String())
	return nil
}
