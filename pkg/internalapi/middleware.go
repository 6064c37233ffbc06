package internalapi

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
	"github.com/gofiber/fiber/v2"
)

// ClientAuthenticator resolves Basic-Auth credentials to an application.
type ClientAuthenticator interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) (*tenant.Application, error)
}

// ClientAuthMiddleware authenticates tenant backends. Credentials travel as
// HTTP Basic auth: username is the client_id, password the client secret.
type ClientAuthMiddleware struct {
	tenants ClientAuthenticator
}

func NewClientAuthMiddleware(tenants ClientAuthenticator) *ClientAuthMiddleware {
	return &ClientAuthMiddleware{tenants: tenants}
}

// Authenticate verifies the caller and stores its application in the request
// locals under kernel.ClientContextKey.
func (m *ClientAuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID, clientSecret, ok := basicCredentials(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return tenant.ErrInvalidClientSecret()
		}

		app, err := m.tenants.Authenticate(c.Context(), clientID, clientSecret)
		if err != nil {
			return err
		}

		c.Locals(string(kernel.ClientContextKey), app)
		return c.Next()
	}
}

// ClientApp pulls the authenticated application out of the request locals.
func ClientApp(c *fiber.Ctx) *tenant.Application {
	app, _ := c.Locals(string(kernel.ClientContextKey)).(*tenant.Application)
	return app
}

func basicCredentials(header string) (clientID, clientSecret string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(raw), ":")
}
