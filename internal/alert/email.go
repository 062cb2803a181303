package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/wonny/vigil/pkg/config"
	"github.com/wonny/vigil/pkg/logger"
)

// EmailDispatcher sends alerts over SMTP.
// ⭐ SSOT: 알림 메일 발송은 여기서만
type EmailDispatcher struct {
	cfg    config.SMTPConfig
	logger *logger.Logger
}

// NewEmailDispatcher creates a new SMTP dispatcher
func NewEmailDispatcher(cfg config.SMTPConfig, log *logger.Logger) *EmailDispatcher {
	return &EmailDispatcher{
		cfg:    cfg,
		logger: log,
	}
}

// Send delivers one alert mail to the configured recipient.
func (d *EmailDispatcher) Send(_ context.Context, subject, body string) error {
	if d.cfg.Host == "" || d.cfg.From == "" || d.cfg.To == "" {
		return fmt.Errorf("smtp not configured")
	}

	addr := fmt.Sprintf("%s:%s", d.cfg.Host, d.cfg.Port)
	recipients := strings.Split(d.cfg.To, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	msg := strings.Join([]string{
		"From: " + d.cfg.From,
		"To: " + d.cfg.To,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if d.cfg.User != "" {
		auth = smtp.PlainAuth("", d.cfg.User, d.cfg.Password, d.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, d.cfg.From, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	d.logger.WithFields(map[string]interface{}{
		"subject": subject,
		"to":      d.cfg.To,
	}).Info("Alert mail sent")

	return nil
}
