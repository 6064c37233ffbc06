package identitysrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
	"github.com/google/uuid"
)

// LinkPurger removes an account's authorization rows when the account is
// deleted.
type LinkPurger interface {
	DeleteForAccount(ctx context.Context, accountID kernel.AccountID) error
}

// Notifier fans an event out to the tenants linked to an account.
type Notifier interface {
	Broadcast(ctx context.Context, accountID kernel.AccountID, specificApp kernel.AppID, ev webhook.Event)
}

type AccountService struct {
	repo     identity.Repository
	links    LinkPurger
	notifier Notifier
}

func NewAccountService(repo identity.Repository, links LinkPurger, notifier Notifier) *AccountService {
	return &AccountService{repo: repo, links: links, notifier: notifier}
}

// CreateInput carries the optional identifiers for a new account. At least
// one of Email, Username, TelegramID, or GoogleID must be set.
type CreateInput struct {
	Email       *string
	Username    *string
	TelegramID  *string
	GoogleID    *string
	PhoneNumber *string
	Password    string
	DisplayName string
}

func (in CreateInput) hasIdentifier() bool {
	return in.Email != nil || in.Username != nil || in.TelegramID != nil || in.GoogleID != nil
}

// Create registers a new account. Identifier uniqueness is pre-checked here
// for a friendly error, and enforced again by the store's unique indexes.
func (s *AccountService) Create(ctx context.Context, in CreateInput) (*identity.Account, error) {
	if !in.hasIdentifier() {
		return nil, identity.ErrNoIdentifier()
	}

	account := &identity.Account{
		ID:          kernel.NewAccountID(uuid.NewString()),
		TelegramID:  in.TelegramID,
		GoogleID:    in.GoogleID,
		PhoneNumber: in.PhoneNumber,
		DisplayName: in.DisplayName,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}

	if in.Email != nil {
		email := identity.NormalizeIdentifier(*in.Email)
		account.Email = &email
		if _, err := s.repo.FindByEmail(ctx, email); err == nil {
			return nil, identity.ErrIdentifierTaken("email")
		}
		account.AuthProviders = append(account.AuthProviders, "email")
	}
	if in.Username != nil {
		username := identity.NormalizeIdentifier(*in.Username)
		account.Username = &username
		if _, err := s.repo.FindByUsername(ctx, username); err == nil {
			return nil, identity.ErrIdentifierTaken("username")
		}
	}
	if in.TelegramID != nil {
		if _, err := s.repo.FindByTelegram(ctx, *in.TelegramID); err == nil {
			return nil, identity.ErrIdentifierTaken("telegram_id")
		}
		account.AuthProviders = append(account.AuthProviders, "telegram")
	}
	if in.GoogleID != nil {
		account.AuthProviders = append(account.AuthProviders, "google")
	}

	if in.Password != "" {
		hash, err := identity.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = hash
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{"account_id": account.ID}).Info("account created")
	return account, nil
}

// Authenticate checks an email/password pair. Inactive accounts are rejected
// after the password check so the error does not leak account state to a
// guesser.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*identity.Account, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, identity.ErrInvalidCredentials()
	}
	if !account.VerifyPassword(password) {
		return nil, identity.ErrInvalidCredentials()
	}
	if !account.IsActive {
		return nil, identity.ErrAccountInactive()
	}
	return account, nil
}

// FindOrCreateByTelegram resolves a telegram login, creating the account on
// first contact.
func (s *AccountService) FindOrCreateByTelegram(ctx context.Context, telegramID, displayName string) (*identity.Account, error) {
	account, err := s.repo.FindByTelegram(ctx, telegramID)
	if err == nil {
		return account, nil
	}
	return s.Create(ctx, CreateInput{TelegramID: &telegramID, DisplayName: displayName})
}

func (s *AccountService) Get(ctx context.Context, id kernel.AccountID) (*identity.Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *AccountService) GetByEmail(ctx context.Context, email string) (*identity.Account, error) {
	return s.repo.FindByEmail(ctx, email)
}

func (s *AccountService) GetByTelegram(ctx context.Context, telegramID string) (*identity.Account, error) {
	return s.repo.FindByTelegram(ctx, telegramID)
}

// UpdatePassword replaces the password credential and notifies every linked
// tenant with a security event.
func (s *AccountService) UpdatePassword(ctx context.Context, id kernel.AccountID, newPassword string) error {
	hash, err := identity.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, hash); err != nil {
		return err
	}

	s.notifier.Broadcast(ctx, id, "", webhook.NewEvent(webhook.EventPasswordChange, id))
	return nil
}

// UpdateProfile applies a partial profile update and notifies linked tenants.
// Identifier changes get the same uniqueness pre-check as Create; the store's
// unique indexes remain the backstop.
func (s *AccountService) UpdateProfile(ctx context.Context, id kernel.AccountID, updates identity.ProfileUpdate) (*identity.Account, error) {
	if updates.Email != nil {
		email := identity.NormalizeIdentifier(*updates.Email)
		if existing, err := s.repo.FindByEmail(ctx, email); err == nil && existing.ID != id {
			return nil, identity.ErrIdentifierTaken("email")
		}
		updates.Email = &email
	}
	if updates.Username != nil {
		username := identity.NormalizeIdentifier(*updates.Username)
		if existing, err := s.repo.FindByUsername(ctx, username); err == nil && existing.ID != id {
			return nil, identity.ErrIdentifierTaken("username")
		}
		updates.Username = &username
	}
	if updates.PhoneNumber != nil {
		if existing, err := s.repo.FindByPhone(ctx, *updates.PhoneNumber); err == nil && existing.ID != id {
			return nil, identity.ErrIdentifierTaken("phone_number")
		}
	}

	if err := s.repo.UpdateProfile(ctx, id, updates); err != nil {
		return nil, err
	}

	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.notifier.Broadcast(ctx, id, "", webhook.NewEvent(webhook.EventAccountUpdate, id).
		With("fields", changedFields(updates)))
	return account, nil
}

// LinkEmail attaches an email/password credential to an existing account,
// typically one created through telegram.
func (s *AccountService) LinkEmail(ctx context.Context, id kernel.AccountID, email, password string) error {
	email = identity.NormalizeIdentifier(email)

	if existing, err := s.repo.FindByEmail(ctx, email); err == nil && existing.ID != id {
		return identity.ErrIdentifierTaken("email")
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.LinkEmail(ctx, id, email, hash); err != nil {
		return err
	}

	s.notifier.Broadcast(ctx, id, "", webhook.NewEvent(webhook.EventAccountUpdate, id).
		With("fields", []string{"email"}))
	return nil
}

// LinkTelegram attaches a telegram credential to an existing account.
func (s *AccountService) LinkTelegram(ctx context.Context, id kernel.AccountID, telegramID string) error {
	if existing, err := s.repo.FindByTelegram(ctx, telegramID); err == nil && existing.ID != id {
		return identity.ErrIdentifierTaken("telegram_id")
	}

	if err := s.repo.LinkTelegram(ctx, id, telegramID); err != nil {
		return err
	}

	s.notifier.Broadcast(ctx, id, "", webhook.NewEvent(webhook.EventAccountUpdate, id).
		With("fields", []string{"telegram_id"}))
	return nil
}

// Purge deletes an account and all of its tenant links.
func (s *AccountService) Purge(ctx context.Context, id kernel.AccountID) error {
	if err := s.links.DeleteForAccount(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logx.WithFields(logx.Fields{"account_id": id}).Info("account purged")
	return nil
}

// IsHeimdall reports whether an email belongs to a cross-tenant super-admin.
func (s *AccountService) IsHeimdall(ctx context.Context, email string) (bool, error) {
	return s.repo.IsHeimdall(ctx, email)
}

func changedFields(updates identity.ProfileUpdate) []string {
	var fields []string
	if updates.Email != nil {
		fields = append(fields, "email")
	}
	if updates.Username != nil {
		fields = append(fields, "username")
	}
	if updates.DisplayName != nil {
		fields = append(fields, "display_name")
	}
	if updates.PhoneNumber != nil {
		fields = append(fields, "phone_number")
	}
	return fields
}
