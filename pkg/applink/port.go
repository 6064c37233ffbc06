package applink

import (
	"context"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// Repository is the persistence contract for the authorization ledger.
// Upsert and SweepExpired are single atomic store operations; PromoteOwner
// runs its demote and promote inside one transaction.
type Repository interface {
	Find(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) (*Link, error)
	FindOwner(ctx context.Context, appID kernel.AppID) (*Link, error)

	// Upsert creates or updates the (account, app) row with the given role
	// and expiry mutation, refreshing last_activity.
	Upsert(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID, role Role, expiry ExpiryChange) (*Link, error)

	// PromoteOwner demotes any other owner of the app to a non-expiring
	// admin and upserts the new owner row in the same transaction. It
	// returns the demoted links, if any.
	PromoteOwner(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID, expiry ExpiryChange) (*Link, []*Link, error)

	Delete(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) error
	DeleteForAccount(ctx context.Context, accountID kernel.AccountID) error

	ListForAccount(ctx context.Context, accountID kernel.AccountID) ([]*Link, error)
	ListForApp(ctx context.Context, appID kernel.AppID) ([]*Link, error)

	// SweepExpired downgrades every non-user row whose expiry has passed to
	// the baseline user role with the expiry cleared, and returns the rows
	// as they were before the downgrade.
	SweepExpired(ctx context.Context, now time.Time) ([]*Link, error)
}
