package reconciler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Refresher periodically reloads the first page of notifications, which replaces the store's
// contents and counters and so bounds any drift caused by missed events.
type Refresher struct {
	cron       *cron.Cron
	reconciler *Reconciler
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRefresher returns a refresher that runs on the given cron schedule, for example "@every 5m".
func NewRefresher(r *Reconciler, schedule string) (*Refresher, error) {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	refresher := &Refresher{cron: c, reconciler: r}
	if _, err := c.AddFunc(schedule, refresher.refresh); err != nil {
		return nil, errors.Wrapf(err, "invalid reconcile schedule `%s`", schedule)
	}
	return refresher, nil
}

func (f *Refresher) refresh() {
	// Errors are logged by the reconciler.
	_ = f.reconciler.LoadNotifications(f.ctx, 1)
}

// Start starts the schedule. Refreshes use ctx, and stop when ctx is cancelled.
func (f *Refresher) Start(ctx context.Context) {
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.cron.Start()
	log.Info("periodic notification refresh started")
}

// Stop stops the schedule and waits for a running refresh to finish.
func (f *Refresher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	<-f.cron.Stop().Done()
	log.Info("periodic notification refresh stopped")
}
