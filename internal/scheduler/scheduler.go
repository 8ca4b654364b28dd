// Package scheduler runs the daily billing jobs on wall-clock times in the
// configured timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/tagihin/tagihin/internal/audit/domain"
	billingdomain "github.com/tagihin/tagihin/internal/billing/domain"
	"github.com/tagihin/tagihin/internal/clock"
	"github.com/tagihin/tagihin/internal/config"
	obsmetrics "github.com/tagihin/tagihin/internal/observability/metrics"
	"github.com/tagihin/tagihin/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

// jobTimeout bounds one job execution. Sweeps iterate every record they
// find, so the bound is generous.
const jobTimeout = 20 * time.Minute

// distributedLockTTL must outlive the longest job so a crashed replica's
// lock expires on its own.
const distributedLockTTL = 25 * time.Minute

// JobFunc is one scheduled billing operation.
type JobFunc func(ctx context.Context, now time.Time) (auditdomain.JobStats, error)

// JobSpec binds a job to its daily wall-clock slot ("15:04" layout).
type JobSpec struct {
	Name string
	At   string
	Run  JobFunc
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Billing billingdomain.Service
	Audit   auditdomain.Service
	Clock   clock.Clock
	Locker  *ratelimit.Locker `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	tz      *time.Location
	jobs    []JobSpec
	locks   *jobLocks
	locker  *ratelimit.Locker
	audit   auditdomain.Service
	clock   clock.Clock
	billing billingdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Billing == nil || p.Audit == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}

	tz, err := time.LoadLocation(p.Cfg.SchedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", p.Cfg.SchedulerTimezone, err)
	}

	s := &Scheduler{
		log:     p.Log.Named("scheduler"),
		tz:      tz,
		locks:   newJobLocks(),
		locker:  p.Locker,
		audit:   p.Audit,
		clock:   p.Clock,
		billing: p.Billing,
	}
	s.jobs = defaultJobs(p.Billing)
	return s, nil
}

// RunForever ticks once per minute and fires every job whose slot matches
// the current wall-clock time in the scheduler timezone.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.String("timezone", s.tz.String()),
		zap.Int("jobs", len(s.jobs)))

	var lastSlot string
	for {
		now := s.clock.Now().In(s.tz)
		slot := now.Format("15:04")
		if slot != lastSlot {
			lastSlot = slot
			for _, job := range s.jobs {
				if job.At == slot {
					go s.runJob(ctx, job, now)
				}
			}
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunJobByName fires one job immediately, outside its slot. Used by the
// scheduler binary's run-once mode.
func (s *Scheduler) RunJobByName(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			s.runJob(ctx, job, s.clock.Now().In(s.tz))
			return nil
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) runJob(parent context.Context, job JobSpec, now time.Time) {
	schedMetrics := obsmetrics.Scheduler()

	if !s.locks.tryAcquire(job.Name) {
		s.log.Warn("job still running, skipping",
			zap.String("job", job.Name))
		schedMetrics.IncJobSkip(job.Name, "already_running")
		return
	}
	defer s.locks.release(job.Name)

	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	if s.locker != nil {
		key := "tagihin:scheduler:" + job.Name
		token, acquired, err := s.locker.TryLock(ctx, key, distributedLockTTL)
		if err != nil {
			s.log.Warn("distributed lock unavailable, running anyway",
				zap.String("job", job.Name), zap.Error(err))
		} else if !acquired {
			s.log.Info("job held by another replica, skipping",
				zap.String("job", job.Name))
			schedMetrics.IncJobSkip(job.Name, "held_elsewhere")
			return
		} else {
			defer func() {
				if err := s.locker.Release(ctx, key, token); err != nil {
					s.log.Warn("lock release failed",
						zap.String("job", job.Name), zap.Error(err))
				}
			}()
		}
	}

	log := s.log.With(zap.String("job", job.Name))
	start := s.clock.Now()

	runLog, err := s.audit.StartCronJob(ctx, job.Name)
	if err != nil {
		log.Error("could not record job start", zap.Error(err))
		return
	}

	stats, runErr := s.execute(ctx, job, now, log)

	status := auditdomain.CronJobStatusSuccess
	switch {
	case runErr != nil:
		status = auditdomain.CronJobStatusFailed
		if stats.ErrorMessage == "" {
			stats.ErrorMessage = runErr.Error()
		}
	case stats.RecordsFailed > 0:
		status = auditdomain.CronJobStatusWarning
	}

	if err := s.audit.CompleteCronJob(ctx, runLog.ID, status, stats); err != nil {
		log.Error("could not record job completion", zap.Error(err))
	}

	duration := s.clock.Now().Sub(start)
	schedMetrics.IncJobRun(job.Name, string(status))
	schedMetrics.ObserveJobDuration(job.Name, duration)

	if runErr != nil {
		log.Error("job failed",
			zap.Duration("duration", duration),
			zap.Error(runErr))
		return
	}
	log.Info("job finished",
		zap.Duration("duration", duration),
		zap.Int("processed", stats.RecordsProcessed),
		zap.Int("failed", stats.RecordsFailed))
}

// execute runs the job body, converting a panic into a failed run so one
// bad job never takes down the scheduler loop.
func (s *Scheduler) execute(ctx context.Context, job JobSpec, now time.Time, log *zap.Logger) (stats auditdomain.JobStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx, now)
}
