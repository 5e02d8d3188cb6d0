// utils/email.go
package utils

import (
	"fmt"
	"log"

	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"go-storefront/config"
)

// Mailer sends one HTML e-mail.
type Mailer interface {
	SendEmail(toEmail, subject, htmlContent string) error
}

// NewMailer picks Postmark, then SendGrid, and falls back to logging when neither is configured.
func NewMailer(cfg config.EmailConfig) Mailer {
	switch {
	case cfg.PostmarkToken != "":
		return NewPostmarkMailer(cfg.PostmarkToken, cfg.Sender)
	case cfg.SendGridAPIKey != "":
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.Sender)
	default:
		return LogMailer{}
	}
}

// PostmarkMailer handles sending emails using Postmark
type PostmarkMailer struct {
	client *postmark.Client
	sender string
}

func NewPostmarkMailer(serverToken, sender string) *PostmarkMailer {
	return &PostmarkMailer{
		client: postmark.NewClient(serverToken, ""),
		sender: sender,
	}
}

func (m *PostmarkMailer) SendEmail(toEmail, subject, htmlContent string) error {
	_, err := m.client.SendEmail(postmark.Email{
		From:     m.sender,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlContent,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.Printf("email sent via postmark to=%s subject=%q", toEmail, subject)
	return nil
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	sender string
}

func NewSendGridMailer(apiKey, sender string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		sender: sender,
	}
}

func (m *SendGridMailer) SendEmail(toEmail, subject, htmlContent string) error {
	message := mail.NewSingleEmail(mail.NewEmail("", m.sender), subject, mail.NewEmail("", toEmail), "", htmlContent)
	resp, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send email: sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	log.Printf("email sent via sendgrid to=%s subject=%q", toEmail, subject)
	return nil
}

// LogMailer only logs; used when no e-mail provider is configured.
type LogMailer struct{}

func (LogMailer) SendEmail(toEmail, subject, _ string) error {
	log.Printf("email not sent (no provider configured) to=%s subject=%q", toEmail, subject)
	return nil
}
