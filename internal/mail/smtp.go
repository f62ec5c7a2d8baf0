package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.Username != ""
}

type SMTPSender struct {
	cfg  SMTPConfig
	log  *slog.Logger
	send func(*gomail.Message) error
}

func NewSMTPSender(cfg SMTPConfig, log *slog.Logger) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	s := &SMTPSender{cfg: cfg, log: log}
	s.send = func(m *gomail.Message) error {
		return gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password).DialAndSend(m)
	}
	return s
}

func (s *SMTPSender) From() string {
	return s.cfg.From
}

// Send delivers msg synchronously. An unconfigured sender logs and drops
// the message so local runs work without a mail server.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	const op = "mail.SMTPSender.Send"

	if !s.cfg.configured() {
		s.log.Warn("smtp config missing, skip email", slog.String("to", msg.To))
		return nil
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%s: empty recipient", op)
	}

	from := msg.From
	if from == "" {
		from = s.cfg.From
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}
