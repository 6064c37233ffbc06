package payment

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Observed-payment statuses (records reported by an external watcher before
// any user claims them).
const (
	ObservedUnclaimed = "unclaimed"
	ObservedClaimed   = "claimed"
)

// Transaction is a payment intent. AccountID may be unset until claim time.
type Transaction struct {
	TransactionID string            `db:"transaction_id" json:"transaction_id"`
	AccountID     *kernel.AccountID `db:"account_id" json:"account_id,omitempty"`
	AppID         kernel.AppID      `db:"app_id" json:"app_id"`
	AppName       string            `db:"app_name" json:"app_name"`
	Amount        float64           `db:"amount" json:"amount"`
	Currency      string            `db:"currency" json:"currency"`
	Description   string            `db:"description" json:"description"`
	Status        string            `db:"status" json:"status"`
	TargetRole    applink.Role      `db:"target_role" json:"target_role"`
	Duration      string            `db:"duration" json:"duration"`
	ClientRefID   *string           `db:"client_ref_id" json:"client_ref_id,omitempty"`
	ProviderRef   *string           `db:"provider_ref" json:"provider_ref,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// ObservedPayment is an externally observed payment awaiting a claim.
type ObservedPayment struct {
	TrxID              string            `db:"trx_id" json:"trx_id"`
	Amount             float64           `db:"amount" json:"amount"`
	Currency           string            `db:"currency" json:"currency"`
	PayerName          string            `db:"payer_name" json:"payer_name"`
	RawText            string            `db:"raw_text" json:"-"`
	Status             string            `db:"status" json:"status"`
	ClaimedByAccountID *kernel.AccountID `db:"claimed_by_account_id" json:"claimed_by_account_id,omitempty"`
	ClaimedForAppID    *kernel.AppID     `db:"claimed_for_app_id" json:"claimed_for_app_id,omitempty"`
	ClaimedMethod      *string           `db:"claimed_method" json:"claimed_method,omitempty"`
	ClaimedAt          *time.Time        `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

// NewTransactionID generates an opaque transaction identifier.
func NewTransactionID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to generate transaction id", errx.TypeInternal)
	}
	return "tx-" + hex.EncodeToString(b), nil
}

// RoleAssignableByPayment rejects privileged roles so a payment can never
// escalate someone into an admin tier.
func RoleAssignableByPayment(role applink.Role) bool {
	if applink.Rank(role) > 0 {
		return false
	}
	return !strings.Contains(strings.ToLower(string(role)), "admin")
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("PAYMENT")

var (
	CodeTransactionNotFound = ErrRegistry.Register("TRANSACTION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Transaction not found")
	CodeForbiddenRole       = ErrRegistry.Register("FORBIDDEN_ROLE", errx.TypeValidation, http.StatusForbidden, "This role cannot be assigned via payment")
	CodeAlreadyClaimed      = ErrRegistry.Register("ALREADY_CLAIMED", errx.TypeConflict, http.StatusConflict, "Payment not found or already claimed")
	CodeMissingAmount       = ErrRegistry.Register("MISSING_AMOUNT", errx.TypeValidation, http.StatusBadRequest, "Amount and client_ref_id are required")
)

func ErrTransactionNotFound() *errx.Error { return ErrRegistry.New(CodeTransactionNotFound) }
func ErrAlreadyClaimed() *errx.Error      { return ErrRegistry.New(CodeAlreadyClaimed) }
func ErrMissingAmount() *errx.Error       { return ErrRegistry.New(CodeMissingAmount) }

func ErrForbiddenRole(role applink.Role) *errx.Error {
	return ErrRegistry.New(CodeForbiddenRole).WithDetail("role", string(role))
}
