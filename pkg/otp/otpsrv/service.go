package otpsrv

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/otp"
	"github.com/google/uuid"
)

type OTPService struct {
	repo   otp.Repository
	mailer otp.Mailer
}

func NewOTPService(repo otp.Repository, mailer otp.Mailer) *OTPService {
	return &OTPService{repo: repo, mailer: mailer}
}

// Issue creates a single-use code for an identifier on a channel. Saving
// replaces any live code for the same (identifier, channel) pair, so issuing a
// new code invalidates the previous one. Email codes are delivered through the
// mailer; on other channels the caller transports the code itself.
func (s *OTPService) Issue(ctx context.Context, identifier, channel, appName string) (*otp.Record, error) {
	if identifier == "" {
		return nil, otp.ErrMissingInput()
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return nil, err
	}

	rec := otp.Record{
		ID:         uuid.NewString(),
		Code:       code,
		Identifier: identifier,
		Channel:    channel,
	}

	if err := s.repo.Save(ctx, rec, otp.TTL); err != nil {
		return nil, err
	}

	if channel == otp.ChannelEmail {
		if err := s.mailer.SendOTP(ctx, identifier, code, appName); err != nil {
			return nil, errx.Wrap(err, "failed to deliver OTP", errx.TypeExternal)
		}
	}

	logx.WithFields(logx.Fields{"channel": channel, "otp_id": rec.ID}).Info("verification code issued")
	return &rec, nil
}

// IssueDeepLink creates a long-lived opaque token bound to an account, for
// flows where the code travels inside a URL instead of being typed.
func (s *OTPService) IssueDeepLink(ctx context.Context, identifier string, accountID kernel.AccountID) (*otp.Record, error) {
	token, err := otp.GenerateToken()
	if err != nil {
		return nil, err
	}

	rec := otp.Record{
		ID:         uuid.NewString(),
		Code:       token,
		Identifier: identifier,
		Channel:    otp.ChannelDeepLink,
		AccountID:  accountID,
	}

	if err := s.repo.Save(ctx, rec, otp.TTL); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Verify redeems a code. The store's find-and-delete guarantees at most one
// successful redemption per code.
func (s *OTPService) Verify(ctx context.Context, identifier, channel, code string) (*otp.Record, error) {
	code = otp.CleanCode(code)
	if identifier == "" || code == "" {
		return nil, otp.ErrMissingInput()
	}
	return s.repo.Consume(ctx, identifier, channel, code)
}

// VerifyByID redeems a code against the verification ID returned at issue
// time instead of the raw identifier.
func (s *OTPService) VerifyByID(ctx context.Context, id, code string) (*otp.Record, error) {
	code = otp.CleanCode(code)
	if id == "" || code == "" {
		return nil, otp.ErrMissingInput()
	}
	return s.repo.ConsumeByID(ctx, id, code)
}

// VerifyDeepLink redeems a deep-link token.
func (s *OTPService) VerifyDeepLink(ctx context.Context, token string) (*otp.Record, error) {
	if token == "" {
		return nil, otp.ErrMissingInput()
	}
	return s.repo.Consume(ctx, "", otp.ChannelDeepLink, token)
}
