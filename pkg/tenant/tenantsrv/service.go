package tenantsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/google/uuid"
)

type ApplicationService struct {
	repo tenant.Repository
}

func NewApplicationService(repo tenant.Repository) *ApplicationService {
	return &ApplicationService{repo: repo}
}

// RegisterInput carries the fields a new tenant provides at onboarding.
type RegisterInput struct {
	AppName            string
	CallbackURL        string
	WebURL             *string
	APIURL             *string
	LogoURL            string
	QRURL              string
	AllowedAuthMethods []string
	TelegramBotToken   *string
}

// Registered is the one-time onboarding response. ClientSecret is the only
// place the plaintext secret ever appears; it is not recoverable afterwards.
type Registered struct {
	App           *tenant.Application
	ClientSecret  string
	WebhookSecret string
}

// Register onboards a new application and issues its credentials.
func (s *ApplicationService) Register(ctx context.Context, in RegisterInput) (*Registered, error) {
	clientID, err := tenant.NewClientID(in.AppName)
	if err != nil {
		return nil, err
	}
	clientSecret, err := tenant.NewClientSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := tenant.HashSecret(clientSecret)
	if err != nil {
		return nil, err
	}
	webhookSecret, err := tenant.NewWebhookSecret()
	if err != nil {
		return nil, err
	}

	methods := in.AllowedAuthMethods
	if len(methods) == 0 {
		methods = []string{"email"}
	}

	app := &tenant.Application{
		ID:                 kernel.NewAppID(uuid.NewString()),
		AppName:            in.AppName,
		ClientID:           clientID,
		ClientSecretHash:   secretHash,
		WebhookSecret:      webhookSecret,
		CallbackURL:        in.CallbackURL,
		WebURL:             in.WebURL,
		APIURL:             in.APIURL,
		LogoURL:            in.LogoURL,
		QRURL:              in.QRURL,
		AllowedAuthMethods: methods,
		TelegramBotToken:   in.TelegramBotToken,
		CreatedAt:          time.Now(),
	}

	if err := s.repo.Create(ctx, app); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{"client_id": clientID}).Info("application registered")
	return &Registered{App: app, ClientSecret: clientSecret, WebhookSecret: webhookSecret}, nil
}

// Authenticate resolves a client_id/secret pair to the application. A missing
// app and a wrong secret produce the same error.
func (s *ApplicationService) Authenticate(ctx context.Context, clientID, clientSecret string) (*tenant.Application, error) {
	app, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, tenant.ErrInvalidClientSecret()
	}
	if !app.VerifySecret(clientSecret) {
		return nil, tenant.ErrInvalidClientSecret()
	}
	return app, nil
}

// RotateSecret replaces the client secret, returning the new plaintext once.
// The webhook secret is untouched: in-flight deliveries keep verifying.
func (s *ApplicationService) RotateSecret(ctx context.Context, id kernel.AppID) (string, error) {
	secret, err := tenant.NewClientSecret()
	if err != nil {
		return "", err
	}
	hash, err := tenant.HashSecret(secret)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateSecretHash(ctx, id, hash); err != nil {
		return "", err
	}

	logx.WithFields(logx.Fields{"app_id": id}).Info("client secret rotated")
	return secret, nil
}

// UpdateDetails applies a partial profile update to the application.
func (s *ApplicationService) UpdateDetails(ctx context.Context, id kernel.AppID, updates tenant.DetailsUpdate) (*tenant.Application, error) {
	if updates.Empty() {
		return nil, tenant.ErrNothingToUpdate()
	}
	if err := s.repo.UpdateDetails(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *ApplicationService) Get(ctx context.Context, id kernel.AppID) (*tenant.Application, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ApplicationService) GetByClientID(ctx context.Context, clientID string) (*tenant.Application, error) {
	return s.repo.FindByClientID(ctx, clientID)
}

func (s *ApplicationService) List(ctx context.Context) ([]*tenant.Application, error) {
	return s.repo.ListAll(ctx)
}
