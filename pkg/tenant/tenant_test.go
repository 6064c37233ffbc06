package tenant_test

import (
	"regexp"
	"testing"

	"github.com/Abraxas-365/bifrost/pkg/tenant"
)

func TestNewClientID_Format(t *testing.T) {
	id, err := tenant.NewClientID("My Cool App")
	if err != nil {
		t.Fatalf("new client id: %v", err)
	}
	if !regexp.MustCompile(`^my_cool_app_[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("unexpected client id format: %q", id)
	}

	other, err := tenant.NewClientID("My Cool App")
	if err != nil {
		t.Fatalf("new client id: %v", err)
	}
	if id == other {
		t.Fatal("two registrations of the same name must get distinct client ids")
	}
}

func TestSecretHashRoundTrip(t *testing.T) {
	secret, err := tenant.NewClientSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}
	hash, err := tenant.HashSecret(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}

	app := &tenant.Application{ClientSecretHash: hash}
	if !app.VerifySecret(secret) {
		t.Fatal("the issued secret must verify against its hash")
	}
	if app.VerifySecret("not-the-secret") {
		t.Fatal("a wrong secret must not verify")
	}
}

func TestAllowsMethod(t *testing.T) {
	app := &tenant.Application{AllowedAuthMethods: []string{"email", "telegram"}}

	if !app.AllowsMethod("email") || !app.AllowsMethod("telegram") {
		t.Fatal("enabled methods must be allowed")
	}
	if app.AllowsMethod("google") {
		t.Fatal("a method not in the list must be refused")
	}
}
