package notifier

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// SMTPConfig holds the process-wide SMTP transport settings.
type SMTPConfig struct {
	Host     string        `yaml:"host"`     // SMTP server host
	Port     int           `yaml:"port"`     // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string        `yaml:"username"` // SMTP username (optional)
	Password string        `yaml:"-"`        // SMTP password (optional, from environment)
	From     string        `yaml:"from"`     // From address
	Timeout  time.Duration `yaml:"timeout"`  // Dial timeout (default: 30s)
}

// Validate validates the SMTP configuration.
func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	return nil
}

// EmailConfig is the channel config of an email channel.
type EmailConfig struct {
	Address string `json:"address"`
}

// Validate validates the recipient address.
func (c *EmailConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if _, err := mail.ParseAddress(c.Address); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return nil
}

// EmailAdapter sends alerts via SMTP.
type EmailAdapter struct {
	smtp      SMTPConfig
	templates *Templates
}

// NewEmailAdapter creates a new email adapter.
func NewEmailAdapter(config SMTPConfig) (*EmailAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid smtp config: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &EmailAdapter{
		smtp:      config,
		templates: templates,
	}, nil
}

// Provider returns "email".
func (e *EmailAdapter) Provider() models.Provider {
	return models.ProviderEmail
}

// ValidateConfig parses an email channel config.
func (e *EmailAdapter) ValidateConfig(raw json.RawMessage) (ChannelConfig, error) {
	cfg := &EmailConfig{}
	if err := decodeConfig(models.ProviderEmail, raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Send mails the rendered alert to the channel address.
func (e *EmailAdapter) Send(ctx context.Context, cfg ChannelConfig, payload *Payload) SendResult {
	c, err := configAs[*EmailConfig](models.ProviderEmail, cfg)
	if err != nil {
		return sendFailed(models.ProviderEmail, err)
	}

	data := PayloadToTemplateData(payload)

	htmlBody, err := e.templates.RenderHTML(&data)
	if err != nil {
		return sendFailed(models.ProviderEmail, fmt.Errorf("failed to render HTML template: %w", err))
	}

	plainBody, err := e.templates.RenderPlain(&data)
	if err != nil {
		return sendFailed(models.ProviderEmail, fmt.Errorf("failed to render plain template: %w", err))
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(payload.Severity)), payload.Title())
	if payload.Test {
		subject = "[TEST] " + subject
	}

	messageID := fmt.Sprintf("<%d.%s@blazealert>", time.Now().UnixNano(), payload.AlertID)
	msg := e.buildMIMEMessage(c.Address, subject, messageID, plainBody, htmlBody)

	if err := e.sendMail(ctx, c.Address, msg); err != nil {
		return sendFailed(models.ProviderEmail, err)
	}
	return sendOK(models.ProviderEmail, messageID)
}

// SendTest sends a synthetic notification.
func (e *EmailAdapter) SendTest(ctx context.Context, cfg ChannelConfig) SendResult {
	return e.Send(ctx, cfg, TestPayload())
}

// buildMIMEMessage builds a MIME multipart message with HTML and plain text.
func (e *EmailAdapter) buildMIMEMessage(to, subject, messageID, plainBody, htmlBody string) []byte {
	boundary := fmt.Sprintf("----=_Part_%d", time.Now().UnixNano())

	var msg strings.Builder

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.smtp.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	// Plain text part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(plainBody)
	msg.WriteString("\r\n")

	// HTML part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(msg.String())
}

// sendMail sends the email via SMTP.
func (e *EmailAdapter) sendMail(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(e.smtp.Host, fmt.Sprintf("%d", e.smtp.Port))

	tlsConfig := &tls.Config{
		ServerName: e.smtp.Host,
	}

	var client *smtp.Client
	var err error

	if e.smtp.Port == 465 {
		client, err = e.connectImplicitTLS(ctx, addr, tlsConfig)
	} else {
		client, err = e.connectSTARTTLS(ctx, addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if e.smtp.Username != "" && e.smtp.Password != "" {
		auth := smtp.PlainAuth("", e.smtp.Username, e.smtp.Password, e.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(extractEmail(e.smtp.From)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(extractEmail(to)); err != nil {
		return fmt.Errorf("failed to add recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

// connectImplicitTLS connects using implicit TLS (port 465).
func (e *EmailAdapter) connectImplicitTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: e.smtp.Timeout},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, e.smtp.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// connectSTARTTLS connects using STARTTLS (port 587 or 25).
func (e *EmailAdapter) connectSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{
		Timeout: e.smtp.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, e.smtp.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	return client, nil
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if parsed, err := mail.ParseAddress(addr); err == nil {
		return parsed.Address
	}
	return addr
}
