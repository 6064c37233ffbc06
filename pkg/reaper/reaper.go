// Package reaper periodically downgrades expired subscription roles back to
// user and notifies the affected tenants.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/bifrost/pkg/applink"
	"github.com/Abraxas-365/bifrost/pkg/kernel"
	"github.com/Abraxas-365/bifrost/pkg/logx"
	"github.com/Abraxas-365/bifrost/pkg/webhook"
)

// Sweeper performs the store-side downgrade and reports what changed.
type Sweeper interface {
	SweepExpired(ctx context.Context) ([]applink.RoleChange, error)
}

// Notifier fans an event out to the tenants linked to an account.
type Notifier interface {
	Broadcast(ctx context.Context, accountID kernel.AccountID, specificApp kernel.AppID, ev webhook.Event)
}

type Reaper struct {
	sweeper  Sweeper
	notifier Notifier
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(sweeper Sweeper, notifier Notifier, interval time.Duration) *Reaper {
	if interval == 0 {
		interval = time.Hour
	}
	return &Reaper{sweeper: sweeper, notifier: notifier, interval: interval}
}

// Start launches the background loop. The first sweep runs immediately so a
// restart never extends an expired subscription by another interval.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.done)

	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass: downgrade every expired link and emit one
// subscription_expired event per downgrade. Exported so operators can trigger
// a pass outside the schedule.
func (r *Reaper) Sweep(ctx context.Context) {
	changes, err := r.sweeper.SweepExpired(ctx)
	if err != nil {
		logx.WithError(err).Error("reaper: sweep failed")
		return
	}
	if len(changes) == 0 {
		return
	}

	for _, c := range changes {
		r.notifier.Broadcast(ctx, c.AccountID, c.AppID,
			webhook.NewEvent(webhook.EventSubscriptionExpired, c.AccountID).
				With("previous_role", string(c.OldRole)).
				With("new_role", c.NewRole).
				With("reason", c.Reason))
	}

	logx.WithFields(logx.Fields{"downgraded": len(changes)}).Info("reaper: sweep completed")
}
