// Package scheduler runs the periodic drain jobs on a cron schedule. Every tick
// takes a Redis leader lock first, so only one replica works the queues at a
// time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/practice-booking-engine/internal/redis"
)

const (
	leaderLockKey = "lock:delivery-worker:leader"
	jobTimeout    = 90 * time.Second
	lockMargin    = 30 * time.Second
)

// Job is one unit of periodic work. Run returns a short summary for the log.
type Job struct {
	Name string
	Run  func(ctx context.Context) (any, error)
}

type Runner struct {
	log     *zap.Logger
	locker  redisclient.Locker
	jobs    []Job
	lockTTL time.Duration
	timeout time.Duration

	cron   *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

// NewRunner sizes the leader lock to outlive a tick in which every job runs
// to its timeout.
func NewRunner(locker redisclient.Locker, log *zap.Logger, jobs ...Job) *Runner {
	return &Runner{
		log:     log,
		locker:  locker,
		jobs:    jobs,
		lockTTL: time.Duration(len(jobs))*jobTimeout + lockMargin,
		timeout: jobTimeout,
	}
}

// Start schedules RunOnce on a cron expression such as "@every 1m".
func (r *Runner) Start(ctx context.Context, schedule string) error {
	r.runCtx, r.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { r.RunOnce(r.runCtx) }); err != nil {
		r.cancel()
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop cancels in-flight jobs and waits for the current tick to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce runs every job in order while holding the leader lock. It reports
// whether this instance held the lock.
func (r *Runner) RunOnce(ctx context.Context) bool {
	acquired, token, err := r.locker.TryLock(ctx, leaderLockKey, r.lockTTL)
	if err != nil {
		r.log.Warn("leader lock attempt failed", zap.Error(err))
		return false
	}
	if !acquired {
		r.log.Debug("leader lock held by another instance")
		return false
	}
	defer func() {
		if err := r.locker.Unlock(context.WithoutCancel(ctx), leaderLockKey, token); err != nil {
			r.log.Warn("leader lock release failed", zap.Error(err))
		}
	}()

	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return true
		}
		r.run(ctx, job)
	}
	return true
}

func (r *Runner) run(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	summary, err := job.Run(jobCtx)
	if err != nil {
		r.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	r.log.Info("job complete",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Any("summary", summary),
	)
}
