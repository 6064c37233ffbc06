package tenant

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// DetailsUpdate carries the mutable profile fields. Credentials and the
// client identifier are never updatable through this path.
type DetailsUpdate struct {
	AppName          *string
	CallbackURL      *string
	WebURL           *string
	APIURL           *string
	LogoURL          *string
	QRURL            *string
	TelegramBotToken *string
}

// Empty reports whether the update touches nothing.
func (u DetailsUpdate) Empty() bool {
	return u.AppName == nil && u.CallbackURL == nil && u.WebURL == nil &&
		u.APIURL == nil && u.LogoURL == nil && u.QRURL == nil && u.TelegramBotToken == nil
}

// Repository is the persistence contract for applications.
type Repository interface {
	Create(ctx context.Context, app *Application) error
	FindByID(ctx context.Context, id kernel.AppID) (*Application, error)
	FindByClientID(ctx context.Context, clientID string) (*Application, error)
	FindByIDs(ctx context.Context, ids []kernel.AppID) ([]*Application, error)
	UpdateSecretHash(ctx context.Context, id kernel.AppID, hash string) error
	UpdateDetails(ctx context.Context, id kernel.AppID, updates DetailsUpdate) error
	ListAll(ctx context.Context) ([]*Application, error)
}
