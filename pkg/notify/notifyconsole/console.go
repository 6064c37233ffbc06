// Package notifyconsole logs emails instead of sending them. For local
// development and tests.
package notifyconsole

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/notify"
)

type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) SendEmail(ctx context.Context, msg notify.EmailMessage) error {
	logx.WithFields(logx.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.TextBody,
	}).Info("console email")
	return nil
}
