// Package token mints and validates the bearer tokens scoped to one
// (account, tenant) pair. Validation never trusts embedded claims for
// authorization: account liveness and the live role are re-read from the
// stores on every call, so a mid-lifetime downgrade takes effect before the
// token expires.
package token

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/golang-jwt/jwt/v5"
)

// AccountReader re-checks account liveness at validation time.
type AccountReader interface {
	FindByID(ctx context.Context, id kernel.AccountID) (*identity.Account, error)
}

// AppResolver maps the audience claim back to the application.
type AppResolver interface {
	FindByClientID(ctx context.Context, clientID string) (*tenant.Application, error)
}

// RoleReader re-checks the live per-tenant role at validation time.
type RoleReader interface {
	EffectiveRole(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) (applink.Effective, error)
}

// Claims are the decoded contents of a validated token plus the
// authoritative state fetched during validation.
type Claims struct {
	AccountID kernel.AccountID
	ClientID  string
	Role      applink.Effective
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 bearer tokens.
type Service struct {
	secret     []byte
	issuer     string
	userTTL    time.Duration
	serviceTTL time.Duration
	accounts   AccountReader
	apps       AppResolver
	roles      RoleReader
	nowFunc    func() time.Time
}

func NewService(secret, issuer string, userTTL, serviceTTL time.Duration, accounts AccountReader, apps AppResolver, roles RoleReader) *Service {
	if userTTL == 0 {
		userTTL = 7 * 24 * time.Hour
	}
	if serviceTTL == 0 {
		serviceTTL = 24 * time.Hour
	}
	if issuer == "" {
		issuer = "bifrost"
	}
	return &Service{
		secret:     []byte(secret),
		issuer:     issuer,
		userTTL:    userTTL,
		serviceTTL: serviceTTL,
		accounts:   accounts,
		apps:       apps,
		roles:      roles,
		nowFunc:    time.Now,
	}
}

// MintOptions carry the optional convenience claims.
type MintOptions struct {
	Email string
	Name  string

	// Service tokens get the shorter TTL.
	Service bool
}

// Mint signs a token for an account scoped to one tenant audience.
func (s *Service) Mint(accountID kernel.AccountID, audience string, opts MintOptions) (string, error) {
	now := s.nowFunc()
	ttl := s.userTTL
	if opts.Service {
		ttl = s.serviceTTL
	}

	claims := jwtClaims{
		Email: opts.Email,
		Name:  opts.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID.String(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeMintFailed, err)
	}
	return signed, nil
}

// Validate verifies signature, expiry, and audience, then re-reads the
// identity store and the authorization ledger. expectedAudience must be the
// caller's own authenticated client identifier: a token minted for tenant A
// is rejected for tenant B even with a valid signature.
func (s *Service) Validate(ctx context.Context, tokenString, expectedAudience string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithAudience(expectedAudience), jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.nowFunc))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired()
		}
		return nil, ErrRegistry.NewWithCause(CodeInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken()
	}

	accountID := kernel.NewAccountID(claims.Subject)

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeInvalidToken, err)
	}
	if !account.IsActive {
		return nil, identity.ErrAccountInactive()
	}

	app, err := s.apps.FindByClientID(ctx, expectedAudience)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeInvalidToken, err)
	}

	role, err := s.roles.EffectiveRole(ctx, accountID, app.ID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to read live role", errx.TypeInternal)
	}

	return &Claims{
		AccountID: accountID,
		ClientID:  expectedAudience,
		Role:      role,
		Email:     claims.Email,
		Name:      claims.Name,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TOKEN")

var (
	CodeMintFailed   = ErrRegistry.Register("MINT_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeInvalidToken = ErrRegistry.Register("INVALID", errx.TypeAuthentication, http.StatusUnauthorized, "Invalid token signature or audience")
	CodeTokenExpired = ErrRegistry.Register("EXPIRED", errx.TypeExpired, http.StatusUnauthorized, "Token has expired")
)

func ErrInvalidToken() *errx.Error { return ErrRegistry.New(CodeInvalidToken) }
func ErrTokenExpired() *errx.Error { return ErrRegistry.New(CodeTokenExpired) }
