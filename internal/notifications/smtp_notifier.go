package notifications

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers mail over plain SMTP with AUTH. Delivery failures are
// the caller's problem to log; nothing here retries.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, in SendPasswordResetInput) error {
	subject := "Recuperação de senha"

	body := fmt.Sprintf(
		"Olá %s,\r\n\r\nRecebemos um pedido para redefinir a sua senha. Use o código abaixo para continuar:\r\n\r\n%s\r\n\r\nSe você não pediu a redefinição, ignore esta mensagem.\r\n",
		in.Name, in.ResetToken,
	)

	return n.send(ctx, in.Email, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	if n.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	var msg strings.Builder
	msg.WriteString("From: " + n.cfg.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)

	// net/smtp has no context support; run it in a goroutine so a hung
	// provider cannot outlive the job timeout.
	done := make(chan error, 1)

	go func() {
		done <- smtp.SendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg.String()))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
