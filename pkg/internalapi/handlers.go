// Package internalapi is the tenant-facing HTTP surface. Every route is
// authenticated as a tenant backend; end users never talk to it directly.
package internalapi

import (
	"context"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/applink/applinksrv"
	"github.com/Abraxas-365/bifrost/pkg/errx"
	"github.com/Abraxas-365/bifrost/pkg/identity"
	"github.com/Abraxas-365/bifrost/pkg/identity/identitysrv"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/otp"
	"github.com/Abraxas-365/bifrost/pkg/otp/otpsrv"
	"github.com/Abraxas-365/bifrost/pkg/payment"
	"github.com/Abraxas-365/bifrost/pkg/payment/paymentsrv"
	"github.com/Abraxas-365/bifrost/pkg/ptrx"
	"github.com/Abraxas-365/bifrost/pkg/token"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
	"github.com/gofiber/fiber/v2"
)

// Notifier fans an event out to the tenants linked to an account.
type Notifier interface {
	Broadcast(ctx context.Context, accountID kernel.AccountID, specificApp kernel.AppID, ev webhook.Event)
}

type Handlers struct {
	accounts *identitysrv.AccountService
	otps     *otpsrv.OTPService
	links    *applinksrv.LinkService
	payments *paymentsrv.PaymentService
	tokens   *token.Service
	notifier Notifier
}

func NewHandlers(
	accounts *identitysrv.AccountService,
	otps *otpsrv.OTPService,
	links *applinksrv.LinkService,
	payments *paymentsrv.PaymentService,
	tokens *token.Service,
	notifier Notifier,
) *Handlers {
	return &Handlers{
		accounts: accounts,
		otps:     otps,
		links:    links,
		payments: payments,
		tokens:   tokens,
		notifier: notifier,
	}
}

func (h *Handlers) RegisterRoutes(app *fiber.App, auth *ClientAuthMiddleware) {
	g := app.Group("/internal", auth.Authenticate())

	g.Post("/validate-token", h.validateToken)
	g.Post("/otp", h.createOTP)
	g.Post("/otp/deep-link", h.createDeepLink)
	g.Post("/otp/verify", h.verifyOTP)
	g.Post("/link-credential", h.linkCredential)
	g.Get("/role/:account_id", h.getRole)
	g.Post("/grant", h.grant)
	g.Delete("/link/:account_id", h.removeLink)

	g.Post("/payments/secure-intent", h.createIntent)
	g.Get("/payments/status/:transaction_id", h.paymentStatus)
	g.Post("/payments/complete", h.completePayment)
	g.Post("/payments/claim", h.claimPayment)
	g.Post("/payments/observed", h.recordObserved)
}

// ----------------------------------------------------------------------------
// Tokens
// ----------------------------------------------------------------------------

func (h *Handlers) validateToken(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return errx.Validation("A token is required")
	}

	app := ClientApp(c)
	claims, err := h.tokens.Validate(c.Context(), req.Token, app.ClientID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"valid":      true,
		"account_id": claims.AccountID,
		"client_id":  claims.ClientID,
		"role":       claims.Role,
		"email":      claims.Email,
		"name":       claims.Name,
		"expires_at": claims.ExpiresAt,
	})
}

// ----------------------------------------------------------------------------
// OTP login
// ----------------------------------------------------------------------------

func (h *Handlers) createOTP(c *fiber.Ctx) error {
	var req struct {
		Identifier string `json:"identifier"`
		Channel    string `json:"channel"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("Invalid request body")
	}
	if req.Channel == "" {
		req.Channel = otp.ChannelEmail
	}

	app := ClientApp(c)
	if !app.AllowsMethod(req.Channel) {
		return errx.Unauthorized("Auth method not enabled for this application").
			WithDetail("channel", req.Channel)
	}

	rec, err := h.otps.Issue(c.Context(), req.Identifier, req.Channel, app.AppName)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"verification_id": rec.ID,
		"expires_in":      int(otp.TTL.Seconds()),
	})
}

// createDeepLink issues a URL-safe login token for a chat-bot user, bound to
// their account so redemption needs no identifier.
func (h *Handlers) createDeepLink(c *fiber.Ctx) error {
	var req struct {
		TelegramID  string `json:"telegram_id"`
		DisplayName string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil || req.TelegramID == "" {
		return errx.Validation("A telegram_id is required")
	}

	app := ClientApp(c)
	if !app.AllowsMethod(otp.ChannelTelegram) {
		return errx.Unauthorized("Auth method not enabled for this application").
			WithDetail("channel", otp.ChannelTelegram)
	}

	account, err := h.accounts.FindOrCreateByTelegram(c.Context(), req.TelegramID, req.DisplayName)
	if err != nil {
		return err
	}

	rec, err := h.otps.IssueDeepLink(c.Context(), req.TelegramID, account.ID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":      rec.Code,
		"expires_in": int(otp.TTL.Seconds()),
	})
}

func (h *Handlers) verifyOTP(c *fiber.Ctx) error {
	var req struct {
		Identifier     string `json:"identifier"`
		Channel        string `json:"channel"`
		Code           string `json:"code"`
		VerificationID string `json:"verification_id"`
		DisplayName    string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("Invalid request body")
	}
	if req.Channel == "" {
		req.Channel = otp.ChannelEmail
	}

	var rec *otp.Record
	var err error
	switch {
	case req.VerificationID != "":
		rec, err = h.otps.VerifyByID(c.Context(), req.VerificationID, req.Code)
	case req.Channel == otp.ChannelDeepLink:
		rec, err = h.otps.VerifyDeepLink(c.Context(), req.Code)
	default:
		rec, err = h.otps.Verify(c.Context(), req.Identifier, req.Channel, req.Code)
	}
	if err != nil {
		return err
	}

	account, err := h.resolveAccount(c.Context(), rec, req.DisplayName)
	if err != nil {
		return err
	}

	app := ClientApp(c)
	if _, err := h.links.EnsureLinked(c.Context(), account.ID, app.ID, applink.RoleUser); err != nil {
		return err
	}

	opts := token.MintOptions{Name: account.DisplayName}
	if account.Email != nil {
		opts.Email = *account.Email
	}
	signed, err := h.tokens.Mint(account.ID, app.ClientID, opts)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"access_token": signed,
		"account":      account,
	})
}

// resolveAccount maps a redeemed code back to an account, creating one on
// first login.
func (h *Handlers) resolveAccount(ctx context.Context, rec *otp.Record, displayName string) (*identity.Account, error) {
	if !rec.AccountID.IsEmpty() {
		return h.accounts.Get(ctx, rec.AccountID)
	}

	switch rec.Channel {
	case otp.ChannelTelegram:
		return h.accounts.FindOrCreateByTelegram(ctx, rec.Identifier, displayName)
	default:
		account, err := h.accounts.GetByEmail(ctx, rec.Identifier)
		if err == nil {
			return account, nil
		}
		if !errx.IsType(err, errx.TypeNotFound) {
			return nil, err
		}
		return h.accounts.Create(ctx, identitysrv.CreateInput{
			Email:       ptrx.To(rec.Identifier),
			DisplayName: displayName,
		})
	}
}

// ----------------------------------------------------------------------------
// Credentials
// ----------------------------------------------------------------------------

func (h *Handlers) linkCredential(c *fiber.Ctx) error {
	var req struct {
		AccountID  string `json:"account_id"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		TelegramID string `json:"telegram_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.AccountID == "" {
		return errx.Validation("An account_id is required")
	}

	accountID := kernel.NewAccountID(req.AccountID)

	switch {
	case req.Email != "" && req.Password != "":
		if err := h.accounts.LinkEmail(c.Context(), accountID, req.Email, req.Password); err != nil {
			return err
		}
	case req.TelegramID != "":
		if err := h.accounts.LinkTelegram(c.Context(), accountID, req.TelegramID); err != nil {
			return err
		}
	default:
		return errx.Validation("Either email+password or telegram_id is required")
	}

	return c.JSON(fiber.Map{"linked": true})
}

// ----------------------------------------------------------------------------
// Roles
// ----------------------------------------------------------------------------

func (h *Handlers) getRole(c *fiber.Ctx) error {
	accountID := kernel.NewAccountID(c.Params("account_id"))
	app := ClientApp(c)

	role, err := h.links.EffectiveRole(c.Context(), accountID, app.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"account_id": accountID,
		"role":       role,
	})
}

func (h *Handlers) grant(c *fiber.Ctx) error {
	var req struct {
		AccountID      string `json:"account_id"`
		Role           string `json:"role"`
		Duration       string `json:"duration"`
		ActorAccountID string `json:"actor_account_id"`
		ActorEmail     string `json:"actor_email"`
	}
	if err := c.BodyParser(&req); err != nil || req.AccountID == "" || req.Role == "" {
		return errx.Validation("account_id and role are required")
	}

	app := ClientApp(c)
	actorRole, err := h.resolveActorRole(c.Context(), app.ID, req.ActorAccountID, req.ActorEmail)
	if err != nil {
		return err
	}

	accountID := kernel.NewAccountID(req.AccountID)
	changes, err := h.links.Grant(c.Context(), actorRole, accountID, app.ID, applink.Role(req.Role), req.Duration)
	if err != nil {
		return err
	}

	for _, change := range changes {
		h.notifier.Broadcast(c.Context(), change.AccountID, app.ID,
			webhook.NewEvent(webhook.EventRoleChange, change.AccountID).
				With("old_role", string(change.OldRole)).
				With("new_role", change.NewRole).
				With("reason", change.Reason))
	}

	return c.JSON(fiber.Map{"changes": changes})
}

// resolveActorRole figures out with what authority a grant is made: the
// cross-tenant super-admin (identified by email), or an account's own role in
// the calling application.
func (h *Handlers) resolveActorRole(ctx context.Context, appID kernel.AppID, actorAccountID, actorEmail string) (applink.Role, error) {
	if actorEmail != "" {
		heimdall, err := h.accounts.IsHeimdall(ctx, actorEmail)
		if err != nil {
			return "", err
		}
		if heimdall {
			return applink.RoleHeimdall, nil
		}
	}

	if actorAccountID == "" {
		return "", errx.Validation("An acting account is required")
	}

	return h.links.ActorRole(ctx, kernel.NewAccountID(actorAccountID), appID)
}

func (h *Handlers) removeLink(c *fiber.Ctx) error {
	accountID := kernel.NewAccountID(c.Params("account_id"))
	actorID := kernel.NewAccountID(c.Query("actor_account_id", accountID.String()))
	app := ClientApp(c)

	actorRole := applink.Role("")
	if actorID != accountID {
		var err error
		actorRole, err = h.resolveActorRole(c.Context(), app.ID, actorID.String(), c.Query("actor_email"))
		if err != nil {
			return err
		}
	}

	change, err := h.links.Remove(c.Context(), actorID, actorRole, accountID, app.ID)
	if err != nil {
		return err
	}

	h.notifier.Broadcast(c.Context(), accountID, app.ID,
		webhook.NewEvent(webhook.EventRoleChange, accountID).
			With("old_role", string(change.OldRole)).
			With("new_role", change.NewRole).
			With("reason", change.Reason))

	return c.JSON(fiber.Map{"removed": true})
}

// ----------------------------------------------------------------------------
// Payments
// ----------------------------------------------------------------------------

func (h *Handlers) createIntent(c *fiber.Ctx) error {
	var req struct {
		AccountID   string  `json:"account_id"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		Description string  `json:"description"`
		TargetRole  string  `json:"target_role"`
		Duration    string  `json:"duration"`
		ClientRefID string  `json:"client_ref_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("Invalid request body")
	}
	if req.Amount <= 0 || req.ClientRefID == "" {
		return payment.ErrMissingAmount()
	}

	in := paymentsrv.IntentInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		TargetRole:  applink.Role(req.TargetRole),
		Duration:    req.Duration,
		ClientRefID: ptrx.String(req.ClientRefID),
	}
	if req.AccountID != "" {
		in.AccountID = ptrx.To(kernel.NewAccountID(req.AccountID))
	}

	tx, err := h.payments.CreateIntent(c.Context(), ClientApp(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(tx)
}

func (h *Handlers) paymentStatus(c *fiber.Ctx) error {
	tx, err := h.payments.Status(c.Context(), ClientApp(c), c.Params("transaction_id"))
	if err != nil {
		return err
	}
	return c.JSON(tx)
}

func (h *Handlers) completePayment(c *fiber.Ctx) error {
	var req struct {
		TransactionID string `json:"transaction_id"`
		AccountID     string `json:"account_id"`
		ProviderRef   string `json:"provider_ref"`
	}
	if err := c.BodyParser(&req); err != nil || req.TransactionID == "" {
		return errx.Validation("A transaction_id is required")
	}

	tx, err := h.payments.Complete(c.Context(), ClientApp(c), req.TransactionID,
		kernel.NewAccountID(req.AccountID), ptrx.String(req.ProviderRef))
	if err != nil {
		return err
	}
	return c.JSON(tx)
}

// claimPayment resolves the claimant by whichever identity the caller has at
// hand and records which one it was.
func (h *Handlers) claimPayment(c *fiber.Ctx) error {
	var req struct {
		AccountID      string `json:"account_id"`
		TelegramID     string `json:"telegram_id"`
		Email          string `json:"email"`
		TrailingDigits string `json:"trailing_digits"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("Invalid request body")
	}

	var accountID kernel.AccountID
	var method string
	switch {
	case req.AccountID != "":
		accountID, method = kernel.NewAccountID(req.AccountID), "account_id"
	case req.TelegramID != "":
		account, err := h.accounts.GetByTelegram(c.Context(), req.TelegramID)
		if err != nil {
			return err
		}
		accountID, method = account.ID, "telegram_id"
	case req.Email != "":
		account, err := h.accounts.GetByEmail(c.Context(), req.Email)
		if err != nil {
			return err
		}
		accountID, method = account.ID, "email"
	default:
		return errx.Validation("One of account_id, telegram_id, or email is required")
	}

	observed, err := h.payments.Claim(c.Context(), ClientApp(c), accountID, req.TrailingDigits, method)
	if err != nil {
		return err
	}
	return c.JSON(observed)
}

func (h *Handlers) recordObserved(c *fiber.Ctx) error {
	var req struct {
		TrxID     string  `json:"trx_id"`
		Amount    float64 `json:"amount"`
		Currency  string  `json:"currency"`
		PayerName string  `json:"payer_name"`
		RawText   string  `json:"raw_text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("Invalid request body")
	}

	stored, err := h.payments.RecordObserved(c.Context(), &payment.ObservedPayment{
		TrxID:     req.TrxID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		PayerName: req.PayerName,
		RawText:   req.RawText,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"stored": stored})
}
