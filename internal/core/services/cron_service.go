package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"mindfeed-auth/internal/adapters/persistence/repositories"
	"mindfeed-auth/internal/pkg/observability"

	"github.com/robfig/cron/v3"
)

const pruneTimeout = 30 * time.Second

// CronService runs periodic cleanup of expired refresh and reset tokens
type CronService struct {
	cron          *cron.Cron
	schedule      string
	refreshTokens repositories.RefreshTokenStore
	resets        repositories.PasswordResetRepository
}

// NewCronService creates a new cron service. schedule accepts standard cron
// expressions and descriptors such as @hourly.
func NewCronService(schedule string, refreshTokens repositories.RefreshTokenStore, resets repositories.PasswordResetRepository) *CronService {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &CronService{
		cron:          cron.New(cron.WithLocation(time.UTC)),
		schedule:      schedule,
		refreshTokens: refreshTokens,
		resets:        resets,
	}
}

// Start registers the prune job and starts the scheduler
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runPrune); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	log.Printf("⏰ Cron started [prune: %s]", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(pruneTimeout):
		log.Println("⚠️ Cron stop timed out waiting for running job")
	}
	log.Println("⏰ Cron stopped")
}

func (s *CronService) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	if _, _, err := s.PruneExpired(ctx); err != nil {
		log.Printf("❌ Prune job failed: %v", err)
		observability.CaptureError(err, map[string]string{"component": "cron"})
	}
}

// PruneExpired deletes expired refresh tokens and reset keys
func (s *CronService) PruneExpired(ctx context.Context) (refresh int64, resets int64, err error) {
	refresh, err = s.refreshTokens.PruneExpired(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("prune refresh tokens: %w", err)
	}
	if s.resets != nil {
		resets, err = s.resets.DeleteExpired(ctx)
		if err != nil {
			return refresh, 0, fmt.Errorf("prune reset tokens: %w", err)
		}
	}
	if refresh > 0 || resets > 0 {
		log.Printf("🧹 Pruned %d refresh tokens, %d reset tokens", refresh, resets)
	}
	return refresh, resets, nil
}
