package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RateLimitCleaner drops expired verification attempts
type RateLimitCleaner interface {
	CleanupExpiredRateLimits() (int64, error)
}

// ChatPurger deletes closed conversations
type ChatPurger interface {
	PurgeClosedBefore(cutoff time.Time) (int64, error)
}

// PickupPurger deletes old pickup requests
type PickupPurger interface {
	PurgeBefore(cutoff time.Time) (int64, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	limits    RateLimitCleaner
	chats     ChatPurger
	pickups   PickupPurger
	retention time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCronService creates a new CronService. Jobs run in loc.
func NewCronService(limits RateLimitCleaner, chats ChatPurger, pickups PickupPurger, retentionDays int, loc *time.Location, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		limits:    limits,
		chats:     chats,
		pickups:   pickups,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	// "0 */15 * * * *" = every 15 minutes
	if _, err := s.cron.AddFunc("0 */15 * * * *", s.cleanupRateLimitsJob); err != nil {
		return fmt.Errorf("failed to schedule rate limit cleanup job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Cleanup verification attempts (every 15 minutes)")

	// "0 0 3 * * *" = At 3:00 AM every day
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.purgeOldDataJob); err != nil {
		return fmt.Errorf("failed to schedule purge job: %w", err)
	}
	s.logger.Info("✓ Scheduled: Purge closed chats and old pickup requests (daily at 3:00 AM)")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	<-s.cron.Stop().Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) cleanupRateLimitsJob() {
	start := time.Now()
	deleted, err := s.limits.CleanupExpiredRateLimits()
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to cleanup verification attempts")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"deleted":  deleted,
		"duration": time.Since(start).String(),
	}).Debug("[CRON] Cleaned up verification attempts")
}

func (s *CronService) purgeOldDataJob() {
	start := time.Now()
	cutoff := s.now().Add(-s.retention)
	fields := logrus.Fields{"cutoff": cutoff.Format(time.RFC3339)}

	chats, err := s.chats.PurgeClosedBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to purge closed conversations")
	} else {
		fields["conversations"] = chats
	}

	pickups, err := s.pickups.PurgeBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Failed to purge pickup requests")
	} else {
		fields["pickup_requests"] = pickups
	}

	fields["duration"] = time.Since(start).String()
	s.logger.WithFields(fields).Info("[CRON] Purged old data")
}

// RunPurgeNow runs the purge job immediately
func (s *CronService) RunPurgeNow() {
	s.purgeOldDataJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
