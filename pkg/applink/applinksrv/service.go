package applinksrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
)

type LinkService struct {
	repo    applink.Repository
	nowFunc func() time.Time
}

func NewLinkService(repo applink.Repository) *LinkService {
	return &LinkService{repo: repo, nowFunc: time.Now}
}

// Grant sets an account's role in one application, creating the link if
// needed. actorRole is the caller's own role in that application (or heimdall
// for the cross-tenant super-admin). Granting owner transfers ownership: the
// previous owner is demoted to admin in the same store transaction, and the
// returned changes include one entry per demotion.
func (s *LinkService) Grant(ctx context.Context, actorRole applink.Role, accountID kernel.AccountID, appID kernel.AppID, role applink.Role, duration string) ([]applink.RoleChange, error) {
	if !applink.Known(role) || role == applink.RoleHeimdall {
		return nil, applink.ErrUnknownRole().WithDetail("role", string(role))
	}

	expiry, err := applink.ExpiryFor(duration, s.nowFunc())
	if err != nil {
		return nil, err
	}

	var current applink.Role
	existing, err := s.repo.Find(ctx, accountID, appID)
	if err != nil && !errx.IsType(err, errx.TypeNotFound) {
		return nil, err
	}
	if existing != nil {
		current = existing.Role
	}

	if err := applink.CanAssign(actorRole, current, role); err != nil {
		return nil, err
	}

	if role == applink.RoleOwner {
		return s.transferOwnership(ctx, accountID, appID, current, expiry)
	}

	link, err := s.repo.Upsert(ctx, accountID, appID, role, expiry)
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"account_id": accountID,
		"app_id":     appID,
		"role":       link.Role,
	}).Info("role granted")

	if link.Role == current {
		// Same role as before; an expiry refresh is not a role change.
		return nil, nil
	}

	return []applink.RoleChange{{
		AccountID: accountID,
		AppID:     appID,
		OldRole:   current,
		NewRole:   string(link.Role),
		Reason:    "grant",
	}}, nil
}

func (s *LinkService) transferOwnership(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID, current applink.Role, expiry applink.ExpiryChange) ([]applink.RoleChange, error) {
	link, demoted, err := s.repo.PromoteOwner(ctx, accountID, appID, expiry)
	if err != nil {
		return nil, err
	}

	var changes []applink.RoleChange
	if current != applink.RoleOwner {
		changes = append(changes, applink.RoleChange{
			AccountID: accountID,
			AppID:     appID,
			OldRole:   current,
			NewRole:   string(link.Role),
			Reason:    "ownership_transfer",
		})
	}
	for _, d := range demoted {
		changes = append(changes, applink.RoleChange{
			AccountID: d.AccountID,
			AppID:     appID,
			OldRole:   applink.RoleOwner,
			NewRole:   string(d.Role),
			Reason:    "ownership_transfer",
		})
	}

	logx.WithFields(logx.Fields{"app_id": appID, "new_owner": accountID}).Info("ownership transferred")
	return changes, nil
}

// EnsureLinked creates a link with the given role when none exists. An
// existing link is returned unchanged, whatever its role.
func (s *LinkService) EnsureLinked(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID, role applink.Role) (*applink.Link, error) {
	existing, err := s.repo.Find(ctx, accountID, appID)
	if err == nil {
		return existing, nil
	}
	if !errx.IsType(err, errx.TypeNotFound) {
		return nil, err
	}
	return s.repo.Upsert(ctx, accountID, appID, role, applink.ExpiryChange{})
}

// EffectiveRole is the role as authorization decisions should see it: the
// stored role, "expired" past the expiry, or unlinked when no row exists.
func (s *LinkService) EffectiveRole(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) (applink.Effective, error) {
	link, err := s.repo.Find(ctx, accountID, appID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return applink.EffectiveUnlinked, nil
		}
		return applink.EffectiveUnlinked, err
	}
	if link.IsExpired(s.nowFunc()) {
		return applink.EffectiveExpired, nil
	}
	return applink.Effective(link.Role), nil
}

// ActorRole resolves the authority an account currently wields in an
// application. An expired grant carries no authority, whatever role the
// ledger still shows.
func (s *LinkService) ActorRole(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) (applink.Role, error) {
	eff, err := s.EffectiveRole(ctx, accountID, appID)
	if err != nil {
		return "", err
	}
	switch eff {
	case applink.EffectiveUnlinked:
		return "", applink.ErrLinkNotFound()
	case applink.EffectiveExpired:
		return "", applink.ErrInsufficientRank()
	}
	return applink.Role(eff), nil
}

// Remove unlinks an account from an application. An account may always remove
// itself. Anyone else may only remove links still at guest or banned, and only
// with sufficient rank; established users must leave on their own.
func (s *LinkService) Remove(ctx context.Context, actorID kernel.AccountID, actorRole applink.Role, accountID kernel.AccountID, appID kernel.AppID) (*applink.RoleChange, error) {
	link, err := s.repo.Find(ctx, accountID, appID)
	if err != nil {
		return nil, err
	}

	if actorID != accountID && actorRole != applink.RoleHeimdall {
		if link.Role != applink.RoleGuest && link.Role != applink.RoleBanned {
			return nil, applink.ErrSelfRemovalOnly()
		}
		if applink.Rank(actorRole) < applink.Rank(applink.RoleAdmin) {
			return nil, applink.ErrInsufficientRank()
		}
	}

	if err := s.repo.Delete(ctx, accountID, appID); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{"account_id": accountID, "app_id": appID}).Info("account unlinked")
	return &applink.RoleChange{
		AccountID: accountID,
		AppID:     appID,
		OldRole:   link.Role,
		NewRole:   applink.RoleRemoved,
		Reason:    "unlink",
	}, nil
}

func (s *LinkService) Get(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) (*applink.Link, error) {
	return s.repo.Find(ctx, accountID, appID)
}

func (s *LinkService) ListForAccount(ctx context.Context, accountID kernel.AccountID) ([]*applink.Link, error) {
	return s.repo.ListForAccount(ctx, accountID)
}

func (s *LinkService) ListForApp(ctx context.Context, appID kernel.AppID) ([]*applink.Link, error) {
	return s.repo.ListForApp(ctx, appID)
}

// SweepExpired downgrades every expired non-user link to user and reports the
// downgrades.
func (s *LinkService) SweepExpired(ctx context.Context) ([]applink.RoleChange, error) {
	expired, err := s.repo.SweepExpired(ctx, s.nowFunc())
	if err != nil {
		return nil, err
	}

	changes := make([]applink.RoleChange, 0, len(expired))
	for _, l := range expired {
		changes = append(changes, applink.RoleChange{
			AccountID: l.AccountID,
			AppID:     l.AppID,
			OldRole:   l.Role,
			NewRole:   string(applink.RoleUser),
			Reason:    "subscription_expired",
		})
	}
	return changes, nil
}
