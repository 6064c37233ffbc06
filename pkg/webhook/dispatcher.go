package webhook

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/asyncx"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/tenant"
)

// LinkLister resolves which applications an account is linked to.
type LinkLister interface {
	ListForAccount(ctx context.Context, accountID kernel.AccountID) ([]*applink.Link, error)
}

// AppResolver loads the applications referenced by links.
type AppResolver interface {
	FindByIDs(ctx context.Context, ids []kernel.AppID) ([]*tenant.Application, error)
}

// Dispatcher signs and delivers events to tenant callback endpoints.
type Dispatcher struct {
	links   LinkLister
	apps    AppResolver
	client  *http.Client
	nowFunc func() time.Time
}

func NewDispatcher(links LinkLister, apps AppResolver, timeout time.Duration) *Dispatcher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		links:   links,
		apps:    apps,
		client:  &http.Client{Timeout: timeout},
		nowFunc: time.Now,
	}
}

// Send delivers one event to one application. Apps with no API URL are
// skipped. Errors are logged, never returned: notification is advisory.
func (d *Dispatcher) Send(app *tenant.Application, ev Event) {
	if app.APIURL == nil || *app.APIURL == "" {
		return
	}

	payload, err := ev.Payload(d.nowFunc())
	if err != nil {
		logx.WithError(err).Errorf("webhook: failed to build payload for %s", app.ClientID)
		return
	}

	endpoint := strings.TrimRight(*app.APIURL, "/") + Path

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		logx.WithError(err).Errorf("webhook: failed to build request for %s", app.ClientID)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(payload, app.WebhookSecret))
	req.Header.Set(HeaderClientID, app.ClientID)

	resp, err := d.client.Do(req)
	if err != nil {
		logx.WithError(err).Warnf("webhook: delivery to %s failed", app.ClientID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logx.WithFields(logx.Fields{
			"client_id": app.ClientID,
			"status":    resp.StatusCode,
			"event":     ev.Type,
		}).Warn("webhook: delivery rejected")
		return
	}

	logx.WithFields(logx.Fields{"client_id": app.ClientID, "event": ev.Type}).Debug("webhook: delivered")
}

// Broadcast resolves every tenant interested in the account (optionally
// narrowed to one app) and fires one delivery per tenant. Deliveries run in
// the background so the triggering mutation never blocks on them.
func (d *Dispatcher) Broadcast(ctx context.Context, accountID kernel.AccountID, specificApp kernel.AppID, ev Event) {
	links, err := d.links.ListForAccount(ctx, accountID)
	if err != nil {
		logx.WithError(err).Errorf("webhook: failed to resolve links for account %s", accountID)
		return
	}

	seen := make(map[kernel.AppID]bool, len(links))
	var appIDs []kernel.AppID
	for _, l := range links {
		if !specificApp.IsEmpty() && l.AppID != specificApp {
			continue
		}
		if !seen[l.AppID] {
			seen[l.AppID] = true
			appIDs = append(appIDs, l.AppID)
		}
	}
	if len(appIDs) == 0 {
		return
	}

	apps, err := d.apps.FindByIDs(ctx, appIDs)
	if err != nil {
		logx.WithError(err).Errorf("webhook: failed to resolve apps for account %s", accountID)
		return
	}

	for _, app := range apps {
		app := app
		asyncx.Do(func() { d.Send(app, ev) })
	}
}
