package identityinfra

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresAccountRepository is the PostgreSQL implementation of
// identity.Repository. Unique indexes on the optional identifier columns are
// the authoritative backstop for the service-level pre-checks.
type PostgresAccountRepository struct {
	db *sqlx.DB
}

func NewPostgresAccountRepository(db *sqlx.DB) identity.Repository {
	return &PostgresAccountRepository{db: db}
}

type accountPersistence struct {
	ID            kernel.AccountID `db:"id"`
	Email         sql.NullString   `db:"email"`
	Username      sql.NullString   `db:"username"`
	TelegramID    sql.NullString   `db:"telegram_id"`
	GoogleID      sql.NullString   `db:"google_id"`
	PhoneNumber   sql.NullString   `db:"phone_number"`
	PasswordHash  sql.NullString   `db:"password_hash"`
	DisplayName   string           `db:"display_name"`
	IsActive      bool             `db:"is_active"`
	AuthProviders pq.StringArray   `db:"auth_providers"`
	CreatedAt     time.Time        `db:"created_at"`
}

func toPersistence(a *identity.Account) accountPersistence {
	return accountPersistence{
		ID:            a.ID,
		Email:         toNullString(a.Email),
		Username:      toNullString(a.Username),
		TelegramID:    toNullString(a.TelegramID),
		GoogleID:      toNullString(a.GoogleID),
		PhoneNumber:   toNullString(a.PhoneNumber),
		PasswordHash:  sql.NullString{String: a.PasswordHash, Valid: a.PasswordHash != ""},
		DisplayName:   a.DisplayName,
		IsActive:      a.IsActive,
		AuthProviders: a.AuthProviders,
		CreatedAt:     a.CreatedAt,
	}
}

func toDomain(p accountPersistence) *identity.Account {
	return &identity.Account{
		ID:            p.ID,
		Email:         fromNullString(p.Email),
		Username:      fromNullString(p.Username),
		TelegramID:    fromNullString(p.TelegramID),
		GoogleID:      fromNullString(p.GoogleID),
		PhoneNumber:   fromNullString(p.PhoneNumber),
		PasswordHash:  p.PasswordHash.String,
		DisplayName:   p.DisplayName,
		IsActive:      p.IsActive,
		AuthProviders: p.AuthProviders,
		CreatedAt:     p.CreatedAt,
	}
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *identity.Account) error {
	query := `
		INSERT INTO accounts (
			id, email, username, telegram_id, google_id, phone_number,
			password_hash, display_name, is_active, auth_providers, created_at
		) VALUES (
			:id, :email, :username, :telegram_id, :google_id, :phone_number,
			:password_hash, :display_name, :is_active, :auth_providers, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, toPersistence(account))
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return identity.ErrIdentifierTaken(field)
		}
		return errx.Wrap(err, "failed to create account", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresAccountRepository) FindByID(ctx context.Context, id kernel.AccountID) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT * FROM accounts WHERE id = $1`, id.String())
}

func (r *PostgresAccountRepository) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT * FROM accounts WHERE email = $1`, identity.NormalizeIdentifier(email))
}

func (r *PostgresAccountRepository) FindByUsername(ctx context.Context, username string) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT * FROM accounts WHERE username = $1`, identity.NormalizeIdentifier(username))
}

func (r *PostgresAccountRepository) FindByTelegram(ctx context.Context, telegramID string) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT * FROM accounts WHERE telegram_id = $1`, telegramID)
}

func (r *PostgresAccountRepository) FindByPhone(ctx context.Context, phoneNumber string) (*identity.Account, error) {
	return r.findOne(ctx, `SELECT * FROM accounts WHERE phone_number = $1`, phoneNumber)
}

func (r *PostgresAccountRepository) findOne(ctx context.Context, query string, arg any) (*identity.Account, error) {
	var p accountPersistence
	err := r.db.GetContext(ctx, &p, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrAccountNotFound()
		}
		return nil, errx.Wrap(err, "failed to find account", errx.TypeInternal)
	}
	return toDomain(p), nil
}

func (r *PostgresAccountRepository) UpdatePasswordHash(ctx context.Context, id kernel.AccountID, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET password_hash = $1 WHERE id = $2`, hash, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to update password hash", errx.TypeInternal)
	}
	return requireRow(result)
}

func (r *PostgresAccountRepository) UpdateProfile(ctx context.Context, id kernel.AccountID, updates identity.ProfileUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	add("email", updates.Email)
	add("username", updates.Username)
	add("display_name", updates.DisplayName)
	add("phone_number", updates.PhoneNumber)

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id.String())
	query := "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return identity.ErrIdentifierTaken(field)
		}
		return errx.Wrap(err, "failed to update profile", errx.TypeInternal)
	}
	return requireRow(result)
}

func (r *PostgresAccountRepository) LinkEmail(ctx context.Context, id kernel.AccountID, email, passwordHash string) error {
	query := `
		UPDATE accounts SET
			email = $1,
			password_hash = $2,
			auth_providers = array_append(auth_providers, 'email')
		WHERE id = $3 AND NOT ('email' = ANY(auth_providers))`

	result, err := r.db.ExecContext(ctx, query, identity.NormalizeIdentifier(email), passwordHash, id.String())
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return identity.ErrIdentifierTaken(field)
		}
		return errx.Wrap(err, "failed to link email credential", errx.TypeInternal)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		// Provider tag already present: update the credential only.
		result, err = r.db.ExecContext(ctx,
			`UPDATE accounts SET email = $1, password_hash = $2 WHERE id = $3`,
			identity.NormalizeIdentifier(email), passwordHash, id.String())
		if err != nil {
			if field, ok := uniqueViolationField(err); ok {
				return identity.ErrIdentifierTaken(field)
			}
			return errx.Wrap(err, "failed to link email credential", errx.TypeInternal)
		}
		return requireRow(result)
	}
	return nil
}

func (r *PostgresAccountRepository) LinkTelegram(ctx context.Context, id kernel.AccountID, telegramID string) error {
	query := `
		UPDATE accounts SET
			telegram_id = $1,
			auth_providers = CASE
				WHEN 'telegram' = ANY(auth_providers) THEN auth_providers
				ELSE array_append(auth_providers, 'telegram')
			END
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, telegramID, id.String())
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return identity.ErrIdentifierTaken(field)
		}
		return errx.Wrap(err, "failed to link telegram", errx.TypeInternal)
	}
	return requireRow(result)
}

func (r *PostgresAccountRepository) Delete(ctx context.Context, id kernel.AccountID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete account", errx.TypeInternal)
	}
	return requireRow(result)
}

func (r *PostgresAccountRepository) IsHeimdall(ctx context.Context, email string) (bool, error) {
	var role string
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM admins WHERE email = $1`, identity.NormalizeIdentifier(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errx.Wrap(err, "failed to check heimdall status", errx.TypeInternal)
	}
	return role == "heimdall", nil
}

// uniqueViolationField maps a 23505 unique violation to the offending column.
func uniqueViolationField(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return "", false
	}
	for _, field := range []string{"email", "username", "telegram_id", "google_id", "phone_number"} {
		if strings.Contains(pqErr.Constraint, field) {
			return field, true
		}
	}
	return "identifier", true
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return identity.ErrAccountNotFound()
	}
	return nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

