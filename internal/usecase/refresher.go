package usecase

import (
	"context"
	"time"

	"CapFlow/pkg/logger"
)

// Refresher drives FlowDashboard.Refresh on a fixed interval.
type Refresher struct {
	dash     *FlowDashboard
	interval time.Duration
	log      *logger.Logger
	done     chan struct{}
}

func NewRefresher(dash *FlowDashboard, interval time.Duration, log *logger.Logger) *Refresher {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Refresher{dash: dash, interval: interval, log: log, done: make(chan struct{})}
}

// Run refreshes immediately, then every interval until ctx is cancelled.
// Failures are logged; the previous series keeps serving.
func (r *Refresher) Run(ctx context.Context) {
	defer close(r.done)

	r.tick(ctx, "startup")
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.tick(ctx, "interval")
		}
	}
}

// Done is closed when Run returns.
func (r *Refresher) Done() <-chan struct{} { return r.done }

func (r *Refresher) tick(ctx context.Context, trigger string) {
	if err := r.dash.Refresh(ctx, trigger); err != nil && ctx.Err() == nil {
		r.log.Warn("scheduled refresh skipped", logger.String("trigger", trigger), logger.Error(err))
	}
}
