package otp

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// Channels a code can be issued on.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"

	// ChannelDeepLink carries long opaque tokens instead of numeric codes;
	// records on this channel are keyed by the token itself.
	ChannelDeepLink = "deep_link"
)

// TTL is the store-level lifetime of every verification code.
const TTL = 10 * time.Minute

// CodeLength is the number of digits in a numeric code.
const CodeLength = 6

// Record is a single-use verification code. It is consumed exactly once via
// an atomic find-and-delete, or expires out of the store.
type Record struct {
	ID         string           `json:"id"`
	Code       string           `json:"code"`
	Identifier string           `json:"identifier"`
	Channel    string           `json:"channel"`
	AccountID  kernel.AccountID `json:"account_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// GenerateCode produces a fixed-length random numeric code.
func GenerateCode() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(CodeLength), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", errx.Wrap(err, "failed to generate OTP code", errx.TypeInternal)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}

// GenerateToken produces a long URL-safe token for deep-link flows.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to generate deep link token", errx.TypeInternal)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CleanCode strips whitespace users paste in with their code.
func CleanCode(code string) string {
	return strings.Join(strings.Fields(code), "")
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("OTP")

var (
	// An absent record and an expired one are indistinguishable once the
	// store's TTL has purged it, so both surface as the same error.
	CodeInvalidOrExpired = ErrRegistry.Register("INVALID_OR_EXPIRED", errx.TypeExpired, http.StatusUnauthorized, "Verification code is invalid or has expired")
	CodeMissingInput     = ErrRegistry.Register("MISSING_INPUT", errx.TypeValidation, http.StatusBadRequest, "An identifier or verification ID and a code are required")
)

func ErrInvalidOrExpired() *errx.Error { return ErrRegistry.New(CodeInvalidOrExpired) }
func ErrMissingInput() *errx.Error     { return ErrRegistry.New(CodeMissingInput) }
