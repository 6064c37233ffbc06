// cmd/container.go
//
// Root composition root. Owns infrastructure (Postgres, Redis, SES) and wires
// every module. This is the only place that knows about ALL of them.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/applink/applinkinfra"
	"github.com/Abraxas-365/bifrost/pkg/applink/applinksrv"
	"github.com/Abraxas-365/bifrost/pkg/config"
	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/identity/identityinfra"
	"github.com/Abraxas-365/bifrost/pkg/identity/identitysrv"
	"github.com/Abraxas-365/bifrost/pkg/internalapi"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/notify"
	"github.com/Abraxas-365/bifrost/pkg/notify/notifyconsole"
	"github.com/Abraxas-365/bifrost/pkg/notify/notifyses"
	"github.com/Abraxas-365/bifrost/pkg/otp/otpinfra"
	"github.com/Abraxas-365/bifrost/pkg/otp/otpsrv"
	"github.com/Abraxas-365/bifrost/pkg/payment"
	"github.com/Abraxas-365/bifrost/pkg/payment/paymentinfra"
	"github.com/Abraxas-365/bifrost/pkg/payment/paymentsrv"
	"github.com/Abraxas-365/bifrost/pkg/reaper"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/Abraxas-365/bifrost/pkg/tenant/tenantinfra"
	"github.com/Abraxas-365/bifrost/pkg/tenant/tenantsrv"
	"github.com/Abraxas-365/bifrost/pkg/token"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and the composed services.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB    *sqlx.DB
	Redis *redis.Client

	// Repositories
	AccountRepo identity.Repository
	TenantRepo  tenant.Repository
	LinkRepo    applink.Repository
	PaymentRepo payment.Repository

	// Services
	Accounts   *identitysrv.AccountService
	Tenants    *tenantsrv.ApplicationService
	Links      *applinksrv.LinkService
	OTPs       *otpsrv.OTPService
	Payments   *paymentsrv.PaymentService
	Tokens     *token.Service
	Dispatcher *webhook.Dispatcher
	Reaper     *reaper.Reaper

	// HTTP
	Handlers   *internalapi.Handlers
	ClientAuth *internalapi.ClientAuthMiddleware
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("initializing application container")

	c := &Container{Config: cfg}
	c.initInfrastructure()
	c.runMigrations()
	c.initModules()

	logx.Info("application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("failed to connect to Redis: %v", err)
	}
	logx.Info("redis connected")
}

func (c *Container) runMigrations() {
	d := c.Config.Database
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)

	m, err := migrate.New("file://migrations", url)
	if err != nil {
		logx.Fatalf("failed to open migrations: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logx.Fatalf("failed to run migrations: %v", err)
	}
	logx.Info("migrations applied")
}

func (c *Container) emailProvider() notify.EmailSender {
	if c.Config.Email.Provider == "ses" {
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
			awsConfig.WithRegion(c.Config.Email.Region))
		if err != nil {
			logx.Fatalf("failed to load AWS config: %v", err)
		}
		logx.Infof("email provider: SES (region %s)", c.Config.Email.Region)
		return notifyses.NewSESProvider(ses.NewFromConfig(awsCfg), c.Config.Email.FromAddress)
	}

	logx.Info("email provider: console")
	return notifyconsole.NewConsoleProvider()
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	c.AccountRepo = identityinfra.NewPostgresAccountRepository(c.DB)
	c.TenantRepo = tenantinfra.NewPostgresApplicationRepository(c.DB)
	c.LinkRepo = applinkinfra.NewPostgresLinkRepository(c.DB)
	c.PaymentRepo = paymentinfra.NewPostgresPaymentRepository(c.DB)
	otpRepo := otpinfra.NewRedisOTPRepository(c.Redis)

	c.Dispatcher = webhook.NewDispatcher(c.LinkRepo, c.TenantRepo, c.Config.Webhook.Timeout)

	mailer := notify.NewMailer(c.emailProvider())

	c.Accounts = identitysrv.NewAccountService(c.AccountRepo, c.LinkRepo, c.Dispatcher)
	c.Tenants = tenantsrv.NewApplicationService(c.TenantRepo)
	c.Links = applinksrv.NewLinkService(c.LinkRepo)
	c.OTPs = otpsrv.NewOTPService(otpRepo, mailer)
	c.Payments = paymentsrv.NewPaymentService(c.PaymentRepo, c.Links, c.Dispatcher)

	c.Tokens = token.NewService(
		c.Config.JWT.Secret,
		c.Config.JWT.Issuer,
		c.Config.JWT.UserTTL,
		c.Config.JWT.ServiceTTL,
		c.AccountRepo,
		c.TenantRepo,
		c.Links,
	)

	c.Reaper = reaper.New(c.Links, c.Dispatcher, c.Config.Reaper.Interval)

	c.ClientAuth = internalapi.NewClientAuthMiddleware(c.Tenants)
	c.Handlers = internalapi.NewHandlers(c.Accounts, c.OTPs, c.Links, c.Payments, c.Tokens, c.Dispatcher)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) StartBackgroundServices(ctx context.Context) {
	if err := c.Reaper.Start(ctx); err != nil {
		logx.Errorf("failed to start expiration reaper: %v", err)
		return
	}
	logx.Info("expiration reaper started")
}

func (c *Container) Cleanup() {
	if c.Reaper != nil {
		c.Reaper.Stop()
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("error closing database: %v", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("error closing Redis: %v", err)
		}
	}
	logx.Info("cleanup complete")
}
