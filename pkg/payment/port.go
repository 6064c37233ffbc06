package payment

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
)

// Repository is the persistence contract for transactions and observed
// payments. MarkCompleted and Claim are conditional single-row updates so
// concurrent callers cannot double-complete or double-claim.
type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	FindTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	FindTransactionForApp(ctx context.Context, transactionID string, appID kernel.AppID) (*Transaction, error)

	// MarkCompleted flips pending→completed and reports whether this call
	// performed the transition (false when already completed).
	MarkCompleted(ctx context.Context, transactionID string, providerRef *string) (bool, error)

	SaveObserved(ctx context.Context, p *ObservedPayment) (bool, error)

	// FindUnclaimedBySuffix fuzzy-matches an unclaimed observed payment
	// whose trx_id ends with the given digits.
	FindUnclaimedBySuffix(ctx context.Context, suffix string) (*ObservedPayment, error)

	// Claim conditionally transitions unclaimed→claimed; reports whether
	// this call won the claim.
	Claim(ctx context.Context, trxID string, accountID kernel.AccountID, appID kernel.AppID, method string) (bool, error)
}
