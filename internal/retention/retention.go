// Package retention prunes old execution log entries on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// pruneTimeout bounds one scheduled DeleteBefore call.
const pruneTimeout = time.Minute

// Store is the part of the execution repository the pruner needs.
type Store interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule checks a five-field cron expression or a descriptor such
// as "@daily" or "@every 6h".
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("retention: invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Pruner deletes entries older than maxAge.
type Pruner struct {
	store  Store
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewPruner(store Store, maxAge time.Duration, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// PruneOnce deletes everything executed before now minus maxAge.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.maxAge)
	n, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: pruning before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

// Start runs PruneOnce on schedule until ctx is done or the returned stop
// function is called. stop waits for a prune in progress to finish.
func (p *Pruner) Start(ctx context.Context, schedule string) (stop func(), err error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() { p.run(ctx) }))
	c.Start()

	p.logger.Info("retention pruner started",
		slog.String("schedule", schedule),
		slog.Duration("max_age", p.maxAge),
	)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
		}
		<-c.Stop().Done()
	}()

	return sync.OnceFunc(func() {
		close(stopped)
		<-c.Stop().Done()
		p.logger.Info("retention pruner stopped")
	}), nil
}

func (p *Pruner) run(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, pruneTimeout)
	defer cancel()

	n, err := p.PruneOnce(ctx)
	if err != nil {
		p.logger.Error("retention prune failed", slog.String("error", err.Error()))
		return
	}
	p.logger.Info("retention prune finished", slog.Int64("deleted", n))
}
