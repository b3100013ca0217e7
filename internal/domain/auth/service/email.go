package service

import (
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// EmailSender delivers the transactional emails of the auth flows.
type EmailSender interface {
	SendVerificationEmail(to, name, token string) error
	SendPasswordResetEmail(to, name, token string) error
	SendWelcomeEmail(to, name string) error
}

// ResendEmailSender sends email through the Resend API. With no API key
// configured the sender logs and skips, so local setups work without one.
type ResendEmailSender struct {
	client  *resend.Client
	from    string
	baseURL string
	logger  *slog.Logger
}

// NewResendEmailSender creates an email sender. An empty apiKey yields a
// sender that only logs.
func NewResendEmailSender(apiKey, from, baseURL string, logger *slog.Logger) *ResendEmailSender {
	s := &ResendEmailSender{from: from, baseURL: baseURL, logger: logger}
	if apiKey != "" {
		s.client = resend.NewClient(apiKey)
	}
	return s
}

// SendVerificationEmail sends the email address verification link
func (s *ResendEmailSender) SendVerificationEmail(to, name, token string) error {
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", s.baseURL, token)
	html := fmt.Sprintf(
		"<p>Hi %s,</p><p>Welcome to Hearthbooks. Please confirm your email address:</p><p><a href=%q>Verify email</a></p>",
		name, link,
	)
	return s.send(to, "Verify your Hearthbooks email", html)
}

// SendPasswordResetEmail sends the password reset link
func (s *ResendEmailSender) SendPasswordResetEmail(to, name, token string) error {
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", s.baseURL, token)
	html := fmt.Sprintf(
		"<p>Hi %s,</p><p>Someone requested a password reset for your account. The link below is valid for one hour:</p><p><a href=%q>Reset password</a></p><p>If this wasn't you, you can ignore this email.</p>",
		name, link,
	)
	return s.send(to, "Reset your Hearthbooks password", html)
}

// SendWelcomeEmail sends the post-verification welcome note
func (s *ResendEmailSender) SendWelcomeEmail(to, name string) error {
	html := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your email is verified. Create a project, add an account, and import your first bank statement to get going.</p>",
		name,
	)
	return s.send(to, "Welcome to Hearthbooks", html)
}

func (s *ResendEmailSender) send(to, subject, html string) error {
	if s.client == nil {
		s.logger.Info("email sending not configured, skipping", "to", to, "subject", subject)
		return nil
	}

	_, err := s.client.Emails.Send(&resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
