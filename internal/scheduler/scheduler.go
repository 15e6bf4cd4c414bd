// Package scheduler wraps robfig/cron/v3 with named, panic-recovering jobs,
// generalizing the per-plugin job registry design to the control plane's own
// periodic housekeeping: a minion key/version sanity check, LDAP group sync,
// and expired-token pruning.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/resalt-bridge/resalt/internal/logger"
)

// Scheduler runs named cron jobs with panic recovery and structured logging.
type Scheduler struct {
	cron   *cron.Cron
	jobIDs map[string]cron.EntryID
}

// New creates a Scheduler. It does not start running jobs until Start is
// called.
func New() *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		jobIDs: make(map[string]cron.EntryID),
	}
}

// Schedule registers job under jobName and cronExpr, replacing any existing
// job with the same name. The job function is wrapped so a panic is logged
// and swallowed instead of crashing the process.
func (s *Scheduler) Schedule(jobName, cronExpr string, job func()) error {
	if existing, ok := s.jobIDs[jobName]; ok {
		s.cron.Remove(existing)
		delete(s.jobIDs, jobName)
	}

	log := logger.Scheduler()
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("job", jobName).Msg("scheduled job panicked")
			}
		}()
		log.Debug().Str("job", jobName).Msg("running scheduled job")
		job()
	}

	entryID, err := s.cron.AddFunc(cronExpr, wrapped)
	if err != nil {
		return err
	}
	s.jobIDs[jobName] = entryID
	log.Info().Str("job", jobName).Str("cron", cronExpr).Msg("scheduled job")
	return nil
}

// Remove unschedules jobName; a no-op if it isn't scheduled.
func (s *Scheduler) Remove(jobName string) {
	if entryID, ok := s.jobIDs[jobName]; ok {
		s.cron.Remove(entryID)
		delete(s.jobIDs, jobName)
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any running job to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// TokenPruner is the narrow capability PruneExpiredTokens needs from a
// store backend.
type TokenPruner interface {
	DeleteExpiredAuthTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneExpiredTokens removes auth tokens whose upstream credential has long
// since expired. Run daily; the lifespan check in the session bridge makes
// stale rows unusable well before they are reaped.
func PruneExpiredTokens(s TokenPruner) func() {
	return func() {
		log := logger.Scheduler()
		cutoff := time.Now().Add(-24 * time.Hour)
		count, err := s.DeleteExpiredAuthTokens(context.Background(), cutoff)
		if err != nil {
			log.Error().Err(err).Msg("failed to prune expired auth tokens")
			return
		}
		if count > 0 {
			log.Info().Int64("count", count).Msg("pruned expired auth tokens")
		}
	}
}
