package applink_test

import (
	"testing"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
)

func TestCanAssign_ActorMustOutrankTargetAndRequest(t *testing.T) {
	cases := []struct {
		name      string
		actor     applink.Role
		target    applink.Role
		requested applink.Role
		wantErr   bool
	}{
		{"admin grants user", applink.RoleAdmin, applink.RoleGuest, applink.RoleUser, false},
		{"admin grants premium", applink.RoleAdmin, applink.RoleUser, applink.RolePremiumUser, false},
		{"admin cannot grant admin", applink.RoleAdmin, applink.RoleUser, applink.RoleAdmin, true},
		{"admin cannot grant super_admin", applink.RoleAdmin, applink.RoleUser, applink.RoleSuperAdmin, true},
		{"admin cannot touch another admin", applink.RoleAdmin, applink.RoleAdmin, applink.RoleUser, true},
		{"super_admin grants admin", applink.RoleSuperAdmin, applink.RoleUser, applink.RoleAdmin, false},
		{"super_admin cannot touch owner", applink.RoleSuperAdmin, applink.RoleOwner, applink.RoleUser, true},
		{"owner grants super_admin", applink.RoleOwner, applink.RoleAdmin, applink.RoleSuperAdmin, false},
		{"owner cannot grant owner", applink.RoleOwner, applink.RoleAdmin, applink.RoleOwner, true},
		{"heimdall grants owner", applink.RoleHeimdall, applink.RoleOwner, applink.RoleOwner, false},
		{"user cannot grant anything", applink.RoleUser, applink.RoleGuest, applink.RoleUser, true},
		{"unlinked target is fine", applink.RoleAdmin, "", applink.RoleUser, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := applink.CanAssign(tc.actor, tc.target, tc.requested)
			if tc.wantErr && err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for token, days := range map[string]int{"1m": 30, "3m": 90, "6m": 180, "1y": 365} {
		change, err := applink.ExpiryFor(token, now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", token, err)
		}
		if change.At == nil {
			t.Fatalf("%s: expected an absolute expiry", token)
		}
		if want := now.AddDate(0, 0, days); !change.At.Equal(want) {
			t.Fatalf("%s: expected %v, got %v", token, want, *change.At)
		}
	}

	lifetime, err := applink.ExpiryFor(applink.DurationLifetime, now)
	if err != nil {
		t.Fatalf("lifetime: unexpected error: %v", err)
	}
	if !lifetime.Clear || lifetime.At != nil {
		t.Fatalf("lifetime should clear the expiry, got %+v", lifetime)
	}

	empty, err := applink.ExpiryFor("", now)
	if err != nil {
		t.Fatalf("empty: unexpected error: %v", err)
	}
	if empty.Clear || empty.At != nil {
		t.Fatalf("empty duration should leave the expiry alone, got %+v", empty)
	}

	if _, err := applink.ExpiryFor("2w", now); err == nil {
		t.Fatal("expected an error for an unknown duration token")
	}
}

func TestLinkIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if (&applink.Link{ExpiresAt: &future}).IsExpired(now) {
		t.Fatal("future expiry reported as expired")
	}
	if !(&applink.Link{ExpiresAt: &past}).IsExpired(now) {
		t.Fatal("past expiry not reported as expired")
	}
	if (&applink.Link{}).IsExpired(now) {
		t.Fatal("nil expiry must never expire")
	}
}
