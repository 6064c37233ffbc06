package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/Abraxas-365/bifrost/pkg/token"
)

type fakeAccounts struct {
	accounts map[kernel.AccountID]*identity.Account
}

func (f *fakeAccounts) FindByID(_ context.Context, id kernel.AccountID) (*identity.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, identity.ErrAccountNotFound()
	}
	return a, nil
}

type fakeApps struct {
	apps map[string]*tenant.Application
}

func (f *fakeApps) FindByClientID(_ context.Context, clientID string) (*tenant.Application, error) {
	a, ok := f.apps[clientID]
	if !ok {
		return nil, tenant.ErrAppNotFound()
	}
	return a, nil
}

type fakeRoles struct {
	role applink.Effective
}

func (f *fakeRoles) EffectiveRole(context.Context, kernel.AccountID, kernel.AppID) (applink.Effective, error) {
	return f.role, nil
}

func fixture(userTTL time.Duration, role applink.Effective, active bool) (*token.Service, kernel.AccountID, string) {
	accountID := kernel.AccountID("acc-1")
	clientID := "myapp_deadbeef"

	accounts := &fakeAccounts{accounts: map[kernel.AccountID]*identity.Account{
		accountID: {ID: accountID, IsActive: active, DisplayName: "Alice"},
	}}
	apps := &fakeApps{apps: map[string]*tenant.Application{
		clientID: {ID: kernel.AppID("app-1"), ClientID: clientID},
	}}

	svc := token.NewService("test-secret", "bifrost-test", userTTL, time.Hour, accounts, apps, &fakeRoles{role: role})
	return svc, accountID, clientID
}

func TestMintAndValidate(t *testing.T) {
	svc, accountID, clientID := fixture(time.Hour, applink.Effective(applink.RolePremiumUser), true)

	signed, err := svc.Mint(accountID, clientID, token.MintOptions{Email: "alice@example.com", Name: "Alice"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := svc.Validate(context.Background(), signed, clientID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.AccountID != accountID {
		t.Fatalf("expected subject %s, got %s", accountID, claims.AccountID)
	}
	if claims.Role != applink.Effective(applink.RolePremiumUser) {
		t.Fatalf("expected live role premium_user, got %q", claims.Role)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
}

func TestValidate_RejectsWrongAudience(t *testing.T) {
	svc, accountID, clientID := fixture(time.Hour, applink.Effective(applink.RoleUser), true)

	signed, err := svc.Mint(accountID, clientID, token.MintOptions{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	// A valid token for tenant A presented by tenant B must fail.
	if _, err := svc.Validate(context.Background(), signed, "otherapp_cafebabe"); err == nil {
		t.Fatal("expected an audience mismatch error")
	}
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	svc, accountID, clientID := fixture(-time.Minute, applink.Effective(applink.RoleUser), true)

	signed, err := svc.Mint(accountID, clientID, token.MintOptions{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err = svc.Validate(context.Background(), signed, clientID)
	if err == nil {
		t.Fatal("expected an expiry error")
	}
	if !errx.IsType(err, errx.TypeExpired) {
		t.Fatalf("expected an expired-type error, got %v", err)
	}
}

func TestValidate_RejectsInactiveAccount(t *testing.T) {
	svc, accountID, clientID := fixture(time.Hour, applink.Effective(applink.RoleUser), false)

	signed, err := svc.Mint(accountID, clientID, token.MintOptions{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := svc.Validate(context.Background(), signed, clientID); err == nil {
		t.Fatal("expected a rejection for a deactivated account")
	}
}

func TestValidate_RejectsTamperedToken(t *testing.T) {
	svc, accountID, clientID := fixture(time.Hour, applink.Effective(applink.RoleUser), true)

	signed, err := svc.Mint(accountID, clientID, token.MintOptions{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if _, err := svc.Validate(context.Background(), tampered, clientID); err == nil {
		t.Fatal("expected a signature error")
	}
}
