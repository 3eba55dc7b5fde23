package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"comment-insights/shared/config"

	"go.uber.org/zap"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 760px; margin: auto;">
<h2>{{.Title}}</h2>
<p style="color: #666;">{{.Date}}</p>
<pre style="white-space: pre-wrap; font-family: inherit; line-height: 1.5;">{{.Body}}</pre>
</body>
</html>`))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	config *config.EmailConfig
	logger *zap.Logger
	send   sendFunc
}

func NewSender(cfg *config.EmailConfig, logger *zap.Logger) *Sender {
	return &Sender{
		config: cfg,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// SendReport emails a markdown report rendered into a simple HTML page
func (s *Sender) SendReport(title, markdown string, date time.Time) error {
	if markdown == "" {
		return errors.New("report cannot be empty")
	}

	subject := fmt.Sprintf("YouTube Comment Insights - %s (%s)", title, date.Format("Jan 2, 2006"))

	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Title string
		Date  string
		Body  string
	}{title, date.Format("Monday, January 2, 2006 15:04"), markdown})
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	if err := s.SendHTML(subject, buf.String()); err != nil {
		return err
	}
	s.logger.Info("Report emailed", zap.String("subject", subject), zap.String("to", s.config.ToEmail))
	return nil
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	return s.sendViaSMTP(subject, htmlBody)
}

func (s *Sender) sendViaSMTP(subject, body string) error {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)
	}

	to := []string{s.config.ToEmail}
	msg := buildMessage(s.config.FromEmail, s.config.ToEmail, subject, body)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	if err := s.send(addr, auth, s.config.FromEmail, to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`, to, from, subject, body))
}
