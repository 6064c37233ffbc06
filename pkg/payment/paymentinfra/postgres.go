package paymentinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/payment"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresPaymentRepository is the PostgreSQL implementation of
// payment.Repository. The state transitions (MarkCompleted, Claim) are
// conditional single-statement updates so the first caller wins and every
// other concurrent caller observes rows=0.
type PostgresPaymentRepository struct {
	db *sqlx.DB
}

func NewPostgresPaymentRepository(db *sqlx.DB) payment.Repository {
	return &PostgresPaymentRepository{db: db}
}

func (r *PostgresPaymentRepository) CreateTransaction(ctx context.Context, tx *payment.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, account_id, app_id, app_name, amount, currency,
			description, status, target_role, duration, client_ref_id,
			provider_ref, created_at, updated_at
		) VALUES (
			:transaction_id, :account_id, :app_id, :app_name, :amount, :currency,
			:description, :status, :target_role, :duration, :client_ref_id,
			:provider_ref, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, tx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errx.Wrap(err, "duplicate transaction id", errx.TypeConflict)
		}
		return errx.Wrap(err, "failed to create transaction", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresPaymentRepository) FindTransaction(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	var tx payment.Transaction
	err := r.db.GetContext(ctx, &tx,
		`SELECT * FROM transactions WHERE transaction_id = $1`, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrTransactionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find transaction", errx.TypeInternal)
	}
	return &tx, nil
}

func (r *PostgresPaymentRepository) FindTransactionForApp(ctx context.Context, transactionID string, appID kernel.AppID) (*payment.Transaction, error) {
	var tx payment.Transaction
	err := r.db.GetContext(ctx, &tx,
		`SELECT * FROM transactions WHERE transaction_id = $1 AND app_id = $2`,
		transactionID, appID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrTransactionNotFound()
		}
		return nil, errx.Wrap(err, "failed to find transaction", errx.TypeInternal)
	}
	return &tx, nil
}

func (r *PostgresPaymentRepository) MarkCompleted(ctx context.Context, transactionID string, providerRef *string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, provider_ref = COALESCE($2, provider_ref), updated_at = NOW()
		WHERE transaction_id = $3 AND status = $4`,
		payment.StatusCompleted, providerRef, transactionID, payment.StatusPending)
	if err != nil {
		return false, errx.Wrap(err, "failed to complete transaction", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	return rows > 0, nil
}

func (r *PostgresPaymentRepository) SaveObserved(ctx context.Context, p *payment.ObservedPayment) (bool, error) {
	query := `
		INSERT INTO payment_logs (
			trx_id, amount, currency, payer_name, raw_text, status, created_at
		) VALUES (
			:trx_id, :amount, :currency, :payer_name, :raw_text, :status, :created_at
		)
		ON CONFLICT (trx_id) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return false, errx.Wrap(err, "failed to save observed payment", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	return rows > 0, nil
}

func (r *PostgresPaymentRepository) FindUnclaimedBySuffix(ctx context.Context, suffix string) (*payment.ObservedPayment, error) {
	var p payment.ObservedPayment
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM payment_logs
		WHERE status = $1 AND trx_id LIKE '%' || $2
		ORDER BY created_at DESC
		LIMIT 1`,
		payment.ObservedUnclaimed, suffix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrAlreadyClaimed()
		}
		return nil, errx.Wrap(err, "failed to look up observed payment", errx.TypeInternal)
	}
	return &p, nil
}

func (r *PostgresPaymentRepository) Claim(ctx context.Context, trxID string, accountID kernel.AccountID, appID kernel.AppID, method string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_logs
		SET status = $1,
			claimed_by_account_id = $2,
			claimed_for_app_id = $3,
			claimed_method = $4,
			claimed_at = NOW()
		WHERE trx_id = $5 AND status = $6`,
		payment.ObservedClaimed, accountID.String(), appID.String(), method,
		trxID, payment.ObservedUnclaimed)
	if err != nil {
		return false, errx.Wrap(err, "failed to claim observed payment", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	return rows > 0, nil
}
