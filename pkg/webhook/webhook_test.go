package webhook_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"event":"account_update"}`)
	sig := webhook.Sign(payload, "secret-key")

	if !webhook.VerifySignature(payload, "secret-key", sig) {
		t.Fatal("signature must verify with the right key")
	}
	if webhook.VerifySignature(payload, "other-key", sig) {
		t.Fatal("signature must not verify with the wrong key")
	}
	if webhook.VerifySignature([]byte(`{"event":"tampered"}`), "secret-key", sig) {
		t.Fatal("signature must not verify for different bytes")
	}
}

func TestEventPayload(t *testing.T) {
	ev := webhook.NewEvent(webhook.EventRoleChange, kernel.AccountID("acc-1")).
		With("old_role", "user").
		With("new_role", "premium_user")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload, err := ev.Payload(now)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["event"] != webhook.EventRoleChange {
		t.Fatalf("expected event type, got %v", body["event"])
	}
	if body["account_id"] != "acc-1" {
		t.Fatalf("expected account id, got %v", body["account_id"])
	}
	if body["timestamp"] != "2025-06-01T12:00:00Z" {
		t.Fatalf("expected RFC3339 timestamp, got %v", body["timestamp"])
	}
	if body["new_role"] != "premium_user" {
		t.Fatalf("expected extra field, got %v", body["new_role"])
	}
}

func TestEventWith_DoesNotMutateOriginal(t *testing.T) {
	base := webhook.NewEvent(webhook.EventAccountUpdate, kernel.AccountID("acc-1"))
	derived := base.With("fields", []string{"email"})

	if len(base.Extra) != 0 {
		t.Fatalf("With must not mutate the original event: %+v", base.Extra)
	}
	if len(derived.Extra) != 1 {
		t.Fatalf("derived event should carry the field: %+v", derived.Extra)
	}
}

func TestDispatcherSend_SignsAndDelivers(t *testing.T) {
	var gotSignature, gotClientID, gotPath string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(webhook.HeaderSignature)
		gotClientID = r.Header.Get(webhook.HeaderClientID)
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	apiURL := server.URL
	app := &tenant.Application{
		ClientID:      "myapp_deadbeef",
		WebhookSecret: "whsec",
		APIURL:        &apiURL,
	}

	d := webhook.NewDispatcher(nil, nil, time.Second)
	d.Send(app, webhook.NewEvent(webhook.EventPasswordChange, kernel.AccountID("acc-1")))

	if gotPath != webhook.Path {
		t.Fatalf("expected delivery to %s, got %s", webhook.Path, gotPath)
	}
	if gotClientID != "myapp_deadbeef" {
		t.Fatalf("expected client id header, got %q", gotClientID)
	}
	if !webhook.VerifySignature(gotBody, "whsec", gotSignature) {
		t.Fatal("delivered signature must verify against the exact body bytes")
	}
}

func TestDispatcherSend_SkipsAppsWithoutAPIURL(t *testing.T) {
	d := webhook.NewDispatcher(nil, nil, time.Second)

	// Must not panic or attempt any network call.
	d.Send(&tenant.Application{ClientID: "x"}, webhook.NewEvent(webhook.EventAccountUpdate, "acc-1"))

	empty := ""
	d.Send(&tenant.Application{ClientID: "x", APIURL: &empty}, webhook.NewEvent(webhook.EventAccountUpdate, "acc-1"))
}
