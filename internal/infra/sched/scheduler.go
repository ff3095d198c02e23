package sched

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"license-activation-service/internal/infra/metrics"
	red "license-activation-service/internal/infra/redis"
)

// Job is one scheduled maintenance task. Run reports how many rows it touched.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Local   bool // runs on every instance, without the shared lock
	Run     func(ctx context.Context) (int64, error)
}

// Scheduler runs Jobs on cron specs. When a Locker is set, a run is skipped on
// every instance except the one that takes the job's lock.
type Scheduler struct {
	cron   *cron.Cron
	locker red.Locker
	log    *zerolog.Logger
	ctx    context.Context
}

func New(locker red.Locker, logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker: locker,
		log:    &l,
		ctx:    context.Background(),
	}
}

func (s *Scheduler) Add(job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() { s.runJob(s.ctx, job) })
	return err
}

func (s *Scheduler) runJob(parent context.Context, job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	log := s.log.With().Str("job", job.Name).Logger()

	if s.locker != nil && !job.Local {
		key := "lock:job:" + job.Name
		token, err := s.locker.TryLock(ctx, key, timeout)
		if errors.Is(err, red.ErrLockHeld) {
			log.Debug().Msg("job running elsewhere, skipped")
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("job lock unavailable, skipped")
			metrics.IncJobRun(job.Name, false)
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), key, token); err != nil {
				log.Warn().Err(err).Msg("job unlock failed")
			}
		}()
	}

	start := time.Now()
	n, err := job.Run(ctx)
	metrics.IncJobRun(job.Name, err == nil)
	if err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	metrics.AddJobAffected(job.Name, n)
	log.Info().Int64("affected", n).Dur("took", time.Since(start)).Msg("job finished")
}

// Run blocks until ctx is done, then waits for running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Starting scheduler")
	s.cron.Start()
	<-ctx.Done()
	s.log.Info().Msg("Stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}
