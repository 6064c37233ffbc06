package identitysrv_test

import (
	"context"
	"testing"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/identity/identitysrv"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/ptrx"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
)

type fakeAccountRepo struct {
	accounts map[kernel.AccountID]*identity.Account
	heimdall map[string]bool
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: make(map[kernel.AccountID]*identity.Account),
		heimdall: make(map[string]bool),
	}
}

func (f *fakeAccountRepo) Create(_ context.Context, account *identity.Account) error {
	cp := *account
	f.accounts[account.ID] = &cp
	return nil
}

func (f *fakeAccountRepo) FindByID(_ context.Context, id kernel.AccountID) (*identity.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, identity.ErrAccountNotFound()
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*identity.Account, error) {
	for _, a := range f.accounts {
		if a.Email != nil && *a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.ErrAccountNotFound()
}

func (f *fakeAccountRepo) FindByUsername(_ context.Context, username string) (*identity.Account, error) {
	for _, a := range f.accounts {
		if a.Username != nil && *a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.ErrAccountNotFound()
}

func (f *fakeAccountRepo) FindByTelegram(_ context.Context, telegramID string) (*identity.Account, error) {
	for _, a := range f.accounts {
		if a.TelegramID != nil && *a.TelegramID == telegramID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.ErrAccountNotFound()
}

func (f *fakeAccountRepo) FindByPhone(_ context.Context, phoneNumber string) (*identity.Account, error) {
	for _, a := range f.accounts {
		if a.PhoneNumber != nil && *a.PhoneNumber == phoneNumber {
			cp := *a
			return &cp, nil
		}
	}
	return nil, identity.ErrAccountNotFound()
}

func (f *fakeAccountRepo) UpdatePasswordHash(_ context.Context, id kernel.AccountID, hash string) error {
	a, ok := f.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAccountRepo) UpdateProfile(_ context.Context, id kernel.AccountID, updates identity.ProfileUpdate) error {
	a, ok := f.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	if updates.Email != nil {
		a.Email = updates.Email
	}
	if updates.Username != nil {
		a.Username = updates.Username
	}
	if updates.DisplayName != nil {
		a.DisplayName = *updates.DisplayName
	}
	if updates.PhoneNumber != nil {
		a.PhoneNumber = updates.PhoneNumber
	}
	return nil
}

func (f *fakeAccountRepo) LinkEmail(_ context.Context, id kernel.AccountID, email, passwordHash string) error {
	a, ok := f.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	a.Email = &email
	a.PasswordHash = passwordHash
	if !a.HasProvider("email") {
		a.AuthProviders = append(a.AuthProviders, "email")
	}
	return nil
}

func (f *fakeAccountRepo) LinkTelegram(_ context.Context, id kernel.AccountID, telegramID string) error {
	a, ok := f.accounts[id]
	if !ok {
		return identity.ErrAccountNotFound()
	}
	a.TelegramID = &telegramID
	if !a.HasProvider("telegram") {
		a.AuthProviders = append(a.AuthProviders, "telegram")
	}
	return nil
}

func (f *fakeAccountRepo) Delete(_ context.Context, id kernel.AccountID) error {
	if _, ok := f.accounts[id]; !ok {
		return identity.ErrAccountNotFound()
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccountRepo) IsHeimdall(_ context.Context, email string) (bool, error) {
	return f.heimdall[email], nil
}

type fakePurger struct{ purged []kernel.AccountID }

func (f *fakePurger) DeleteForAccount(_ context.Context, accountID kernel.AccountID) error {
	f.purged = append(f.purged, accountID)
	return nil
}

type recordingNotifier struct{ events []webhook.Event }

func (r *recordingNotifier) Broadcast(_ context.Context, _ kernel.AccountID, _ kernel.AppID, ev webhook.Event) {
	r.events = append(r.events, ev)
}

func TestCreate_RequiresAnIdentifier(t *testing.T) {
	svc := identitysrv.NewAccountService(newFakeAccountRepo(), &fakePurger{}, &recordingNotifier{})

	if _, err := svc.Create(context.Background(), identitysrv.CreateInput{DisplayName: "Nobody"}); err == nil {
		t.Fatal("expected an error for an account with no identifiers")
	}
}

func TestCreate_NormalizesEmailAndHashesPassword(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := identitysrv.NewAccountService(repo, &fakePurger{}, &recordingNotifier{})

	account, err := svc.Create(context.Background(), identitysrv.CreateInput{
		Email:    ptrx.To("  Alice@Example.COM "),
		Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if *account.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", *account.Email)
	}
	if account.PasswordHash == "hunter22" || account.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if !account.VerifyPassword("hunter22") {
		t.Fatal("stored hash must verify the original password")
	}
	if !account.HasProvider("email") {
		t.Fatal("email provider tag missing")
	}
}

func TestCreate_RejectsDuplicateEmail(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := identitysrv.NewAccountService(repo, &fakePurger{}, &recordingNotifier{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("a@b.c")}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("A@B.C")})
	if err == nil {
		t.Fatal("expected a conflict for a duplicate email")
	}
	if !errx.IsType(err, errx.TypeConflict) {
		t.Fatalf("expected a conflict-type error, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := identitysrv.NewAccountService(repo, &fakePurger{}, &recordingNotifier{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("a@b.c"), Password: "secret1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "a@b.c", "secret1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "a@b.c", "wrong"); err == nil {
		t.Fatal("wrong password must be rejected")
	}
	if _, err := svc.Authenticate(ctx, "ghost@b.c", "secret1"); err == nil {
		t.Fatal("unknown email must be rejected")
	}
}

func TestUpdatePassword_BroadcastsSecurityEvent(t *testing.T) {
	repo := newFakeAccountRepo()
	notifier := &recordingNotifier{}
	svc := identitysrv.NewAccountService(repo, &fakePurger{}, notifier)
	ctx := context.Background()

	account, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("a@b.c"), Password: "old-pass"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.UpdatePassword(ctx, account.ID, "new-pass"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	if len(notifier.events) != 1 || notifier.events[0].Type != webhook.EventPasswordChange {
		t.Fatalf("expected one security_password_change event, got %+v", notifier.events)
	}

	updated, _ := svc.Get(ctx, account.ID)
	if !updated.VerifyPassword("new-pass") {
		t.Fatal("new password must verify")
	}
	if updated.VerifyPassword("old-pass") {
		t.Fatal("old password must no longer verify")
	}
}

func TestLinkEmail_RejectsEmailOwnedByAnotherAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := identitysrv.NewAccountService(repo, &fakePurger{}, &recordingNotifier{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("taken@b.c")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := svc.Create(ctx, identitysrv.CreateInput{TelegramID: ptrx.To("tg-1")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.LinkEmail(ctx, other.ID, "taken@b.c", "pass"); err == nil {
		t.Fatal("expected a conflict when linking an email owned by another account")
	}
}

func TestUpdateProfile_RejectsIdentifiersOwnedByAnotherAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := identitysrv.NewAccountService(repo, &fakePurger{}, &recordingNotifier{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, identitysrv.CreateInput{
		Email:       ptrx.To("taken@b.c"),
		Username:    ptrx.To("taken"),
		PhoneNumber: ptrx.To("+51999999999"),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("other@b.c")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, other.ID, identity.ProfileUpdate{Email: ptrx.To("Taken@B.C")}); !errx.IsType(err, errx.TypeConflict) {
		t.Fatalf("expected a conflict for a taken email, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, other.ID, identity.ProfileUpdate{Username: ptrx.To("taken")}); !errx.IsType(err, errx.TypeConflict) {
		t.Fatalf("expected a conflict for a taken username, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, other.ID, identity.ProfileUpdate{PhoneNumber: ptrx.To("+51999999999")}); !errx.IsType(err, errx.TypeConflict) {
		t.Fatalf("expected a conflict for a taken phone number, got %v", err)
	}

	// Re-submitting an identifier the account already owns is not a conflict.
	if _, err := svc.UpdateProfile(ctx, other.ID, identity.ProfileUpdate{Email: ptrx.To("other@b.c")}); err != nil {
		t.Fatalf("updating to the account's own email: %v", err)
	}
}

func TestPurge_RemovesLinksAndAccount(t *testing.T) {
	repo := newFakeAccountRepo()
	purger := &fakePurger{}
	svc := identitysrv.NewAccountService(repo, purger, &recordingNotifier{})
	ctx := context.Background()

	account, err := svc.Create(ctx, identitysrv.CreateInput{Email: ptrx.To("a@b.c")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Purge(ctx, account.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(purger.purged) != 1 || purger.purged[0] != account.ID {
		t.Fatalf("expected the links to be purged first, got %+v", purger.purged)
	}
	if _, err := svc.Get(ctx, account.ID); err == nil {
		t.Fatal("account must be gone after purge")
	}
}
