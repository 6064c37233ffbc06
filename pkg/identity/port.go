package identity

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Email       *string
	Username    *string
	DisplayName *string
	PhoneNumber *string
}

// Repository is the persistence contract for accounts.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id kernel.AccountID) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByTelegram(ctx context.Context, telegramID string) (*Account, error)
	FindByPhone(ctx context.Context, phoneNumber string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id kernel.AccountID, hash string) error
	UpdateProfile(ctx context.Context, id kernel.AccountID, updates ProfileUpdate) error

	// LinkEmail and LinkTelegram set the credential and append the provider
	// tag when it is not already present.
	LinkEmail(ctx context.Context, id kernel.AccountID, email, passwordHash string) error
	LinkTelegram(ctx context.Context, id kernel.AccountID, telegramID string) error

	Delete(ctx context.Context, id kernel.AccountID) error

	// IsHeimdall reports whether the email belongs to a cross-tenant
	// super-admin.
	IsHeimdall(ctx context.Context, email string) (bool, error)
}
