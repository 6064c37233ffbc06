package tenantinfra

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresApplicationRepository is the PostgreSQL implementation of
// tenant.Repository.
type PostgresApplicationRepository struct {
	db *sqlx.DB
}

func NewPostgresApplicationRepository(db *sqlx.DB) tenant.Repository {
	return &PostgresApplicationRepository{db: db}
}

type applicationPersistence struct {
	ID                 kernel.AppID   `db:"id"`
	AppName            string         `db:"app_name"`
	ClientID           string         `db:"client_id"`
	ClientSecretHash   string         `db:"client_secret_hash"`
	WebhookSecret      string         `db:"webhook_secret"`
	CallbackURL        string         `db:"callback_url"`
	WebURL             sql.NullString `db:"web_url"`
	APIURL             sql.NullString `db:"api_url"`
	LogoURL            string         `db:"logo_url"`
	QRURL              string         `db:"qr_url"`
	AllowedAuthMethods pq.StringArray `db:"allowed_auth_methods"`
	TelegramBotToken   sql.NullString `db:"telegram_bot_token"`
	CreatedAt          time.Time      `db:"created_at"`
}

func toPersistence(a *tenant.Application) applicationPersistence {
	return applicationPersistence{
		ID:                 a.ID,
		AppName:            a.AppName,
		ClientID:           a.ClientID,
		ClientSecretHash:   a.ClientSecretHash,
		WebhookSecret:      a.WebhookSecret,
		CallbackURL:        a.CallbackURL,
		WebURL:             toNullString(a.WebURL),
		APIURL:             toNullString(a.APIURL),
		LogoURL:            a.LogoURL,
		QRURL:              a.QRURL,
		AllowedAuthMethods: a.AllowedAuthMethods,
		TelegramBotToken:   toNullString(a.TelegramBotToken),
		CreatedAt:          a.CreatedAt,
	}
}

func toDomain(p applicationPersistence) *tenant.Application {
	return &tenant.Application{
		ID:                 p.ID,
		AppName:            p.AppName,
		ClientID:           p.ClientID,
		ClientSecretHash:   p.ClientSecretHash,
		WebhookSecret:      p.WebhookSecret,
		CallbackURL:        p.CallbackURL,
		WebURL:             fromNullString(p.WebURL),
		APIURL:             fromNullString(p.APIURL),
		LogoURL:            p.LogoURL,
		QRURL:              p.QRURL,
		AllowedAuthMethods: p.AllowedAuthMethods,
		TelegramBotToken:   fromNullString(p.TelegramBotToken),
		CreatedAt:          p.CreatedAt,
	}
}

func (r *PostgresApplicationRepository) Create(ctx context.Context, app *tenant.Application) error {
	query := `
		INSERT INTO applications (
			id, app_name, client_id, client_secret_hash, webhook_secret,
			callback_url, web_url, api_url, logo_url, qr_url,
			allowed_auth_methods, telegram_bot_token, created_at
		) VALUES (
			:id, :app_name, :client_id, :client_secret_hash, :webhook_secret,
			:callback_url, :web_url, :api_url, :logo_url, :qr_url,
			:allowed_auth_methods, :telegram_bot_token, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, toPersistence(app))
	if err != nil {
		return errx.Wrap(err, "failed to create application", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresApplicationRepository) FindByID(ctx context.Context, id kernel.AppID) (*tenant.Application, error) {
	return r.findOne(ctx, `SELECT * FROM applications WHERE id = $1`, id.String())
}

func (r *PostgresApplicationRepository) FindByClientID(ctx context.Context, clientID string) (*tenant.Application, error) {
	return r.findOne(ctx, `SELECT * FROM applications WHERE client_id = $1`, clientID)
}

func (r *PostgresApplicationRepository) findOne(ctx context.Context, query string, arg any) (*tenant.Application, error) {
	var p applicationPersistence
	err := r.db.GetContext(ctx, &p, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrAppNotFound()
		}
		return nil, errx.Wrap(err, "failed to find application", errx.TypeInternal)
	}
	return toDomain(p), nil
}

func (r *PostgresApplicationRepository) FindByIDs(ctx context.Context, ids []kernel.AppID) ([]*tenant.Application, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	var rows []applicationPersistence
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM applications WHERE id = ANY($1)`, pq.Array(raw))
	if err != nil {
		return nil, errx.Wrap(err, "failed to find applications", errx.TypeInternal)
	}

	apps := make([]*tenant.Application, len(rows))
	for i, p := range rows {
		apps[i] = toDomain(p)
	}
	return apps, nil
}

func (r *PostgresApplicationRepository) UpdateSecretHash(ctx context.Context, id kernel.AppID, hash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET client_secret_hash = $1 WHERE id = $2`, hash, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to rotate client secret", errx.TypeInternal)
	}
	return requireRow(result)
}

func (r *PostgresApplicationRepository) UpdateDetails(ctx context.Context, id kernel.AppID, updates tenant.DetailsUpdate) error {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	add("app_name", updates.AppName)
	add("callback_url", updates.CallbackURL)
	add("web_url", updates.WebURL)
	add("api_url", updates.APIURL)
	add("logo_url", updates.LogoURL)
	add("qr_url", updates.QRURL)
	add("telegram_bot_token", updates.TelegramBotToken)

	if len(sets) == 0 {
		return tenant.ErrNothingToUpdate()
	}

	args = append(args, id.String())
	query := "UPDATE applications SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errx.Wrap(err, "failed to update application details", errx.TypeInternal)
	}
	return requireRow(result)
}

func (r *PostgresApplicationRepository) ListAll(ctx context.Context) ([]*tenant.Application, error) {
	var rows []applicationPersistence
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM applications ORDER BY created_at`)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list applications", errx.TypeInternal)
	}

	apps := make([]*tenant.Application, len(rows))
	for i, p := range rows {
		apps[i] = toDomain(p)
	}
	return apps, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return tenant.ErrAppNotFound()
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
