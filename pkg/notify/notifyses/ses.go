// Package notifyses delivers email through AWS SES.
package notifyses

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/notify"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESProvider implements notify.EmailSender using AWS SES.
type SESProvider struct {
	client      *ses.Client
	fromAddress string
}

func NewSESProvider(client *ses.Client, fromAddress string) *SESProvider {
	return &SESProvider{client: client, fromAddress: fromAddress}
}

func (p *SESProvider) SendEmail(ctx context.Context, msg notify.EmailMessage) error {
	from := msg.From
	if from == "" {
		from = p.fromAddress
	}

	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(from),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return notify.ErrRegistry.NewWithCause(notify.CodeSendFailed, err).
			WithDetail("subject", msg.Subject)
	}
	return nil
}
