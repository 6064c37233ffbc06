// Package webhook builds, signs, and delivers event notifications to tenant
// applications. Delivery is best-effort: the state change that triggered an
// event has already committed, so failures are logged and dropped.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// Event types emitted by the core.
const (
	EventRoleChange          = "account_role_change"
	EventAccountUpdate       = "account_update"
	EventPasswordChange      = "security_password_change"
	EventSubscriptionSuccess = "subscription_success"
	EventSubscriptionExpired = "subscription_expired"
)

// Headers carried on every delivery.
const (
	HeaderSignature = "X-Bifrost-Signature"
	HeaderClientID  = "X-Bifrost-Client-Id"
)

// Path is appended to the tenant's registered API base URL.
const Path = "/internal/webhook/auth-event"

// Event is one notification payload under construction.
type Event struct {
	Type      string
	AccountID kernel.AccountID
	Extra     map[string]any
}

// NewEvent starts an event for an account.
func NewEvent(eventType string, accountID kernel.AccountID) Event {
	return Event{Type: eventType, AccountID: accountID}
}

// With attaches an event-specific field.
func (e Event) With(key string, value any) Event {
	extra := make(map[string]any, len(e.Extra)+1)
	for k, v := range e.Extra {
		extra[k] = v
	}
	extra[key] = value
	return Event{Type: e.Type, AccountID: e.AccountID, Extra: extra}
}

// Payload renders the exact bytes that get signed and posted.
func (e Event) Payload(now time.Time) ([]byte, error) {
	body := map[string]any{
		"event":      e.Type,
		"account_id": e.AccountID.String(),
		"timestamp":  now.UTC().Format(time.RFC3339),
	}
	for k, v := range e.Extra {
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errx.Wrap(err, "failed to marshal webhook payload", errx.TypeInternal)
	}
	return b, nil
}

// Sign computes the hex HMAC-SHA-256 of the payload under the tenant's
// webhook secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is the check tenants run on their side; kept here so the
// contract lives in one place.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
