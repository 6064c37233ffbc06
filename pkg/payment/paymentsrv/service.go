package paymentsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/payment"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
)

// Granter applies the role purchased by a completed payment. The payment
// path always acts with heimdall authority: rank checks already happened when
// the intent was created, and the money has moved.
type Granter interface {
	Grant(ctx context.Context, actorRole applink.Role, accountID kernel.AccountID, appID kernel.AppID, role applink.Role, duration string) ([]applink.RoleChange, error)
}

// Notifier fans an event out to the tenants linked to an account.
type Notifier interface {
	Broadcast(ctx context.Context, accountID kernel.AccountID, specificApp kernel.AppID, ev webhook.Event)
}

type PaymentService struct {
	repo     payment.Repository
	links    Granter
	notifier Notifier
}

func NewPaymentService(repo payment.Repository, links Granter, notifier Notifier) *PaymentService {
	return &PaymentService{repo: repo, links: links, notifier: notifier}
}

// IntentInput describes a purchase a tenant is preparing for a user.
type IntentInput struct {
	AccountID   *kernel.AccountID
	Amount      float64
	Currency    string
	Description string
	TargetRole  applink.Role
	Duration    string
	ClientRefID *string
}

// CreateIntent opens a pending transaction. Admin-tier roles can never be
// purchased, whatever the tenant asks for.
func (s *PaymentService) CreateIntent(ctx context.Context, app *tenant.Application, in IntentInput) (*payment.Transaction, error) {
	if !applink.Known(in.TargetRole) {
		return nil, applink.ErrUnknownRole().WithDetail("role", string(in.TargetRole))
	}
	if !payment.RoleAssignableByPayment(in.TargetRole) {
		return nil, payment.ErrForbiddenRole(in.TargetRole)
	}
	if _, err := applink.ExpiryFor(in.Duration, time.Now()); err != nil {
		return nil, err
	}

	txID, err := payment.NewTransactionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &payment.Transaction{
		TransactionID: txID,
		AccountID:     in.AccountID,
		AppID:         app.ID,
		AppName:       app.AppName,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Description:   in.Description,
		Status:        payment.StatusPending,
		TargetRole:    in.TargetRole,
		Duration:      in.Duration,
		ClientRefID:   in.ClientRefID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{"transaction_id": txID, "app_id": app.ID}).Info("payment intent created")
	return tx, nil
}

// Status returns a transaction, scoped to the calling tenant.
func (s *PaymentService) Status(ctx context.Context, app *tenant.Application, transactionID string) (*payment.Transaction, error) {
	return s.repo.FindTransactionForApp(ctx, transactionID, app.ID)
}

// Complete settles a transaction and applies the purchased role. Completion
// is idempotent: only the call that performs the pending to completed
// transition grants the role and emits the event, repeats get the settled
// transaction back unchanged.
func (s *PaymentService) Complete(ctx context.Context, app *tenant.Application, transactionID string, accountID kernel.AccountID, providerRef *string) (*payment.Transaction, error) {
	tx, err := s.repo.FindTransactionForApp(ctx, transactionID, app.ID)
	if err != nil {
		return nil, err
	}

	beneficiary := accountID
	if tx.AccountID != nil {
		beneficiary = *tx.AccountID
	}

	performed, err := s.repo.MarkCompleted(ctx, transactionID, providerRef)
	if err != nil {
		return nil, err
	}
	if !performed {
		return s.repo.FindTransactionForApp(ctx, transactionID, app.ID)
	}

	if beneficiary.IsEmpty() {
		// Nothing to grant to yet. The money settles and waits for a claim.
		logx.WithFields(logx.Fields{"transaction_id": transactionID}).Info("payment completed without a bound account")
		return s.repo.FindTransactionForApp(ctx, transactionID, app.ID)
	}

	if _, err := s.links.Grant(ctx, applink.RoleHeimdall, beneficiary, tx.AppID, tx.TargetRole, tx.Duration); err != nil {
		// The money moved; surface the grant failure rather than hiding it
		// behind a completed-looking response.
		return nil, err
	}

	s.notifier.Broadcast(ctx, beneficiary, tx.AppID,
		webhook.NewEvent(webhook.EventSubscriptionSuccess, beneficiary).
			With("transaction_id", transactionID).
			With("amount", tx.Amount).
			With("currency", tx.Currency).
			With("role", string(tx.TargetRole)).
			With("duration", tx.Duration).
			With("expires_at", expiresAt(tx.Duration)))

	logx.WithFields(logx.Fields{
		"transaction_id": transactionID,
		"account_id":     beneficiary,
		"role":           tx.TargetRole,
	}).Info("payment completed")

	return s.repo.FindTransactionForApp(ctx, transactionID, app.ID)
}

// RecordObserved stores a payment reported by an external watcher. Reports
// are keyed by provider transaction id, so replays are absorbed silently.
func (s *PaymentService) RecordObserved(ctx context.Context, p *payment.ObservedPayment) (bool, error) {
	if p.TrxID == "" || p.Amount <= 0 {
		return false, payment.ErrMissingAmount()
	}
	if p.Status == "" {
		p.Status = payment.ObservedUnclaimed
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.repo.SaveObserved(ctx, p)
}

// ClaimDuration is the subscription length granted by a successful claim.
const ClaimDuration = applink.DurationOneMonth

// Claim matches the trailing digits a user read off their payment receipt
// against an unclaimed observed payment. The first claimant wins the
// conditional update; everyone else gets the already-claimed error. method
// records which identity type resolved the claimant.
func (s *PaymentService) Claim(ctx context.Context, app *tenant.Application, accountID kernel.AccountID, trailingDigits, method string) (*payment.ObservedPayment, error) {
	if trailingDigits == "" {
		return nil, payment.ErrMissingAmount()
	}
	if method == "" {
		method = "account_id"
	}

	observed, err := s.repo.FindUnclaimedBySuffix(ctx, trailingDigits)
	if err != nil {
		return nil, err
	}

	won, err := s.repo.Claim(ctx, observed.TrxID, accountID, app.ID, method)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, payment.ErrAlreadyClaimed()
	}

	if _, err := s.links.Grant(ctx, applink.RoleHeimdall, accountID, app.ID, applink.RolePremiumUser, ClaimDuration); err != nil {
		return nil, err
	}

	s.notifier.Broadcast(ctx, accountID, app.ID,
		webhook.NewEvent(webhook.EventSubscriptionSuccess, accountID).
			With("trx_id", observed.TrxID).
			With("amount", observed.Amount).
			With("currency", observed.Currency).
			With("role", string(applink.RolePremiumUser)).
			With("duration", ClaimDuration).
			With("method", method).
			With("expires_at", expiresAt(ClaimDuration)))

	logx.WithFields(logx.Fields{"trx_id": observed.TrxID, "account_id": accountID}).Info("observed payment claimed")

	now := time.Now()
	observed.Status = payment.ObservedClaimed
	observed.ClaimedByAccountID = &accountID
	observed.ClaimedForAppID = &app.ID
	observed.ClaimedMethod = &method
	observed.ClaimedAt = &now
	return observed, nil
}

// expiresAt computes the subscription end carried on success events. Lifetime
// purchases have no end and are sent as null.
func expiresAt(duration string) any {
	change, err := applink.ExpiryFor(duration, time.Now())
	if err != nil || change.At == nil {
		return nil
	}
	return change.At.UTC().Format(time.RFC3339)
}
