package applinkinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresLinkRepository is the PostgreSQL implementation of
// applink.Repository. A partial unique index on (app_id) WHERE role='owner'
// backstops the single-owner invariant enforced by PromoteOwner.
type PostgresLinkRepository struct {
	db *sqlx.DB
}

func NewPostgresLinkRepository(db *sqlx.DB) applink.Repository {
	return &PostgresLinkRepository{db: db}
}

func (r *PostgresLinkRepository) Find(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) (*applink.Link, error) {
	var link applink.Link
	err := r.db.GetContext(ctx, &link,
		`SELECT * FROM app_links WHERE account_id = $1 AND app_id = $2`,
		accountID.String(), appID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, applink.ErrLinkNotFound()
		}
		return nil, errx.Wrap(err, "failed to find app link", errx.TypeInternal)
	}
	return &link, nil
}

func (r *PostgresLinkRepository) FindOwner(ctx context.Context, appID kernel.AppID) (*applink.Link, error) {
	var link applink.Link
	err := r.db.GetContext(ctx, &link,
		`SELECT * FROM app_links WHERE app_id = $1 AND role = $2`,
		appID.String(), string(applink.RoleOwner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, applink.ErrLinkNotFound()
		}
		return nil, errx.Wrap(err, "failed to find app owner", errx.TypeInternal)
	}
	return &link, nil
}

// upsertQuery builds the single-statement upsert for one expiry mutation
// shape. The three variants keep the expiry tri-state out of SQL CASE logic.
func upsertQuery(expiry applink.ExpiryChange) string {
	base := `
		INSERT INTO app_links (account_id, app_id, role, expires_at, linked_at, last_activity)
		VALUES ($1, $2, $3, %s, NOW(), NOW())
		ON CONFLICT (account_id, app_id) DO UPDATE SET
			role = EXCLUDED.role,
			last_activity = NOW()%s
		RETURNING *`

	switch {
	case expiry.At != nil:
		return fmt.Sprintf(base, "$4", ", expires_at = EXCLUDED.expires_at")
	case expiry.Clear:
		return fmt.Sprintf(base, "NULL", ", expires_at = NULL")
	default:
		return fmt.Sprintf(base, "NULL", "")
	}
}

func (r *PostgresLinkRepository) Upsert(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID, role applink.Role, expiry applink.ExpiryChange) (*applink.Link, error) {
	return upsertTx(ctx, r.db, accountID, appID, role, expiry)
}

// queryer covers both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func upsertTx(ctx context.Context, q queryer, accountID kernel.AccountID, appID kernel.AppID, role applink.Role, expiry applink.ExpiryChange) (*applink.Link, error) {
	args := []any{accountID.String(), appID.String(), string(role)}
	if expiry.At != nil {
		args = append(args, *expiry.At)
	}

	var link applink.Link
	if err := q.GetContext(ctx, &link, upsertQuery(expiry), args...); err != nil {
		return nil, errx.Wrap(err, "failed to upsert app link", errx.TypeInternal)
	}
	return &link, nil
}

func (r *PostgresLinkRepository) PromoteOwner(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID, expiry applink.ExpiryChange) (*applink.Link, []*applink.Link, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, errx.Wrap(err, "failed to begin owner transfer", errx.TypeInternal)
	}
	defer tx.Rollback()

	// Demote any sitting owner first so the partial unique index never
	// sees two owner rows.
	var demoted []*applink.Link
	err = tx.SelectContext(ctx, &demoted, `
		UPDATE app_links
		SET role = $1, expires_at = NULL, last_activity = NOW()
		WHERE app_id = $2 AND role = $3 AND account_id <> $4
		RETURNING *`,
		string(applink.RoleAdmin), appID.String(), string(applink.RoleOwner), accountID.String())
	if err != nil {
		return nil, nil, errx.Wrap(err, "failed to demote prior owner", errx.TypeInternal)
	}

	link, err := upsertTx(ctx, tx, accountID, appID, applink.RoleOwner, expiry)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, errx.Wrap(err, "failed to commit owner transfer", errx.TypeInternal)
	}
	return link, demoted, nil
}

func (r *PostgresLinkRepository) Delete(ctx context.Context, accountID kernel.AccountID, appID kernel.AppID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM app_links WHERE account_id = $1 AND app_id = $2`,
		accountID.String(), appID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete app link", errx.TypeInternal)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return applink.ErrLinkNotFound()
	}
	return nil
}

func (r *PostgresLinkRepository) DeleteForAccount(ctx context.Context, accountID kernel.AccountID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM app_links WHERE account_id = $1`, accountID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete links for account", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresLinkRepository) ListForAccount(ctx context.Context, accountID kernel.AccountID) ([]*applink.Link, error) {
	var links []*applink.Link
	err := r.db.SelectContext(ctx, &links,
		`SELECT * FROM app_links WHERE account_id = $1 ORDER BY linked_at`, accountID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to list links for account", errx.TypeInternal)
	}
	return links, nil
}

func (r *PostgresLinkRepository) ListForApp(ctx context.Context, appID kernel.AppID) ([]*applink.Link, error) {
	var links []*applink.Link
	err := r.db.SelectContext(ctx, &links,
		`SELECT * FROM app_links WHERE app_id = $1 ORDER BY linked_at`, appID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to list links for app", errx.TypeInternal)
	}
	return links, nil
}

func (r *PostgresLinkRepository) SweepExpired(ctx context.Context, now time.Time) ([]*applink.Link, error) {
	// The CTE selects-and-locks the expired rows so the returned set is
	// exactly the set downgraded, even under concurrent grants.
	query := `
		WITH expired AS (
			SELECT account_id, app_id, role, expires_at, linked_at, last_activity
			FROM app_links
			WHERE role <> $1 AND expires_at IS NOT NULL AND expires_at < $2
			FOR UPDATE SKIP LOCKED
		),
		downgraded AS (
			UPDATE app_links l
			SET role = $1, expires_at = NULL
			FROM expired e
			WHERE l.account_id = e.account_id AND l.app_id = e.app_id
		)
		SELECT * FROM expired`

	var links []*applink.Link
	err := r.db.SelectContext(ctx, &links, query, string(applink.RoleUser), now)
	if err != nil {
		return nil, errx.Wrap(err, "failed to sweep expired links", errx.TypeInternal)
	}
	return links, nil
}
