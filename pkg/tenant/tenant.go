package tenant

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"golang.org/x/crypto/bcrypt"
)

// Application is a registered client of the identity provider.
//
// ClientSecretHash is a bcrypt hash: the secret is a credential presented by
// the tenant and is never recoverable. WebhookSecret is stored as issued
// because the dispatcher must reproduce it to sign outbound payloads; the two
// storage policies are intentionally different.
type Application struct {
	ID                 kernel.AppID `db:"id" json:"id"`
	AppName            string       `db:"app_name" json:"app_name"`
	ClientID           string       `db:"client_id" json:"client_id"`
	ClientSecretHash   string       `db:"client_secret_hash" json:"-"`
	WebhookSecret      string       `db:"webhook_secret" json:"-"`
	CallbackURL        string       `db:"callback_url" json:"callback_url"`
	WebURL             *string      `db:"web_url" json:"web_url,omitempty"`
	APIURL             *string      `db:"api_url" json:"api_url,omitempty"`
	LogoURL            string       `db:"logo_url" json:"logo_url"`
	QRURL              string       `db:"qr_url" json:"qr_url"`
	AllowedAuthMethods []string     `db:"allowed_auth_methods" json:"allowed_auth_methods"`
	TelegramBotToken   *string      `db:"telegram_bot_token" json:"-"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
}

// AllowsMethod reports whether an auth method (e.g. "email") is enabled.
func (a *Application) AllowsMethod(method string) bool {
	for _, m := range a.AllowedAuthMethods {
		if m == method {
			return true
		}
	}
	return false
}

// VerifySecret compares a presented client secret against the stored hash.
func (a *Application) VerifySecret(provided string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.ClientSecretHash), []byte(provided)) == nil
}

// NewClientID derives a globally unique public identifier from the app name.
func NewClientID(appName string) (string, error) {
	safe := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(appName), " ", "_"))
	suffix, err := randomHex(4)
	if err != nil {
		return "", err
	}
	return safe + "_" + suffix, nil
}

// NewClientSecret generates a URL-safe client secret.
func NewClientSecret() (string, error) {
	return randomURLSafe(32)
}

// NewWebhookSecret generates the per-tenant HMAC signing key.
func NewWebhookSecret() (string, error) {
	return randomHex(24)
}

// HashSecret bcrypt-hashes a client secret for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errx.Wrap(err, "failed to hash client secret", errx.TypeInternal)
	}
	return string(hash), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to generate random bytes", errx.TypeInternal)
	}
	return hex.EncodeToString(b), nil
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to generate random bytes", errx.TypeInternal)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeAppNotFound         = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Application not found")
	CodeInvalidClientSecret = ErrRegistry.Register("INVALID_CLIENT_SECRET", errx.TypeAuthentication, http.StatusUnauthorized, "Invalid client_id or secret")
	CodeNothingToUpdate     = ErrRegistry.Register("NOTHING_TO_UPDATE", errx.TypeValidation, http.StatusBadRequest, "No updatable fields provided")
)

func ErrAppNotFound() *errx.Error         { return ErrRegistry.New(CodeAppNotFound) }
func ErrInvalidClientSecret() *errx.Error { return ErrRegistry.New(CodeInvalidClientSecret) }
func ErrNothingToUpdate() *errx.Error     { return ErrRegistry.New(CodeNothingToUpdate) }
