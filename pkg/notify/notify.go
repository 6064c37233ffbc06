// Package notify delivers user-facing messages. Today that is email only:
// verification codes and security alerts.
package notify

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/errx"
)

// EmailMessage is one outbound email.
type EmailMessage struct {
	To       []string
	From     string
	Subject  string
	TextBody string
	HTMLBody string
}

// EmailSender is implemented by delivery providers (SES, console).
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Mailer composes the product emails and hands them to a provider. It
// satisfies otp.Mailer.
type Mailer struct {
	provider EmailSender
}

func NewMailer(provider EmailSender) *Mailer {
	return &Mailer{provider: provider}
}

// SendOTP delivers a verification code. appName personalizes the subject so
// users recognize which tenant asked for the code.
func (m *Mailer) SendOTP(ctx context.Context, to, code, appName string) error {
	subject := "Your verification code"
	if appName != "" {
		subject = "Your verification code for " + appName
	}

	html, err := renderOTPEmail(otpEmailData{Code: code, AppName: appName})
	if err != nil {
		return err
	}

	return m.provider.SendEmail(ctx, EmailMessage{
		To:       []string{to},
		Subject:  subject,
		TextBody: "Your verification code is " + code + ". It expires in 10 minutes.",
		HTMLBody: html,
	})
}

// SendSecurityAlert tells an account holder their password changed.
func (m *Mailer) SendSecurityAlert(ctx context.Context, to string) error {
	return m.provider.SendEmail(ctx, EmailMessage{
		To:       []string{to},
		Subject:  "Your password was changed",
		TextBody: "Your account password was just changed. If this was not you, contact support immediately.",
	})
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("NOTIFY")

var (
	CodeSendFailed     = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, 502, "Failed to deliver email")
	CodeInvalidMessage = ErrRegistry.Register("INVALID_MESSAGE", errx.TypeValidation, 400, "Email message is incomplete")
	CodeTemplateFailed = ErrRegistry.Register("TEMPLATE_FAILED", errx.TypeInternal, 500, "Failed to render email template")
)
