package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/reaper"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
)

type fakeSweeper struct {
	changes []applink.RoleChange
	calls   int
}

func (f *fakeSweeper) SweepExpired(context.Context) ([]applink.RoleChange, error) {
	f.calls++
	out := f.changes
	f.changes = nil
	return out, nil
}

type recordingNotifier struct{ events []webhook.Event }

func (r *recordingNotifier) Broadcast(_ context.Context, _ kernel.AccountID, _ kernel.AppID, ev webhook.Event) {
	r.events = append(r.events, ev)
}

func TestSweep_EmitsOneEventPerDowngrade(t *testing.T) {
	sweeper := &fakeSweeper{changes: []applink.RoleChange{
		{AccountID: "acc-1", AppID: "app-1", OldRole: applink.RolePremiumUser, NewRole: "user", Reason: "subscription_expired"},
		{AccountID: "acc-2", AppID: "app-1", OldRole: applink.RolePremiumUser, NewRole: "user", Reason: "subscription_expired"},
	}}
	notifier := &recordingNotifier{}

	r := reaper.New(sweeper, notifier, time.Hour)
	r.Sweep(context.Background())

	if len(notifier.events) != 2 {
		t.Fatalf("expected two events, got %d", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.Type != webhook.EventSubscriptionExpired {
		t.Fatalf("expected subscription_expired, got %s", ev.Type)
	}
	if ev.Extra["previous_role"] != "premium_user" || ev.Extra["new_role"] != "user" {
		t.Fatalf("expected role transition in the payload, got %+v", ev.Extra)
	}
}

func TestSweep_QuietWhenNothingExpired(t *testing.T) {
	notifier := &recordingNotifier{}
	r := reaper.New(&fakeSweeper{}, notifier, time.Hour)

	r.Sweep(context.Background())

	if len(notifier.events) != 0 {
		t.Fatalf("no downgrades means no events, got %+v", notifier.events)
	}
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	sweeper := &fakeSweeper{}
	r := reaper.New(sweeper, &recordingNotifier{}, time.Hour)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.Stop()

	// The interval is an hour, so the only possible call is the immediate one.
	if sweeper.calls != 1 {
		t.Fatalf("expected exactly one immediate sweep, got %d", sweeper.calls)
	}
}
