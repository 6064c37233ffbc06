package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"golang.org/x/crypto/bcrypt"
)

// Account is a user identity shared across all tenant applications.
// Every credential field is optional, but each is globally unique when set.
type Account struct {
	ID            kernel.AccountID `db:"id" json:"id"`
	Email         *string          `db:"email" json:"email,omitempty"`
	Username      *string          `db:"username" json:"username,omitempty"`
	TelegramID    *string          `db:"telegram_id" json:"telegram_id,omitempty"`
	GoogleID      *string          `db:"google_id" json:"google_id,omitempty"`
	PhoneNumber   *string          `db:"phone_number" json:"phone_number,omitempty"`
	PasswordHash  string           `db:"password_hash" json:"-"`
	DisplayName   string           `db:"display_name" json:"display_name"`
	IsActive      bool             `db:"is_active" json:"is_active"`
	AuthProviders []string         `db:"auth_providers" json:"auth_providers"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// HasProvider reports whether the account already carries an auth provider tag.
func (a *Account) HasProvider(provider string) bool {
	for _, p := range a.AuthProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// VerifyPassword compares a candidate password against the stored hash.
func (a *Account) VerifyPassword(password string) bool {
	if a.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	return string(hash), nil
}

// NormalizeIdentifier lower-cases case-insensitive identifiers (email, username).
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("ACCOUNT")

var (
	CodeAccountNotFound    = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Account not found")
	CodeIdentifierTaken    = ErrRegistry.Register("IDENTIFIER_TAKEN", errx.TypeConflict, http.StatusConflict, "Identifier is already associated with another account")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthentication, http.StatusUnauthorized, "Invalid credentials")
	CodeAccountInactive    = ErrRegistry.Register("INACTIVE", errx.TypeAuthorization, http.StatusForbidden, "Account is deactivated")
	CodeNoIdentifier       = ErrRegistry.Register("NO_IDENTIFIER", errx.TypeValidation, http.StatusBadRequest, "At least one identifier is required")
)

func ErrAccountNotFound() *errx.Error    { return ErrRegistry.New(CodeAccountNotFound) }
func ErrInvalidCredentials() *errx.Error { return ErrRegistry.New(CodeInvalidCredentials) }
func ErrAccountInactive() *errx.Error    { return ErrRegistry.New(CodeAccountInactive) }
func ErrNoIdentifier() *errx.Error       { return ErrRegistry.New(CodeNoIdentifier) }

func ErrIdentifierTaken(field string) *errx.Error {
	return ErrRegistry.New(CodeIdentifierTaken).WithDetail("field", field)
}
