package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"eduquest-progress/internal/domain"
)

// Scheduler runs SyncAll on a fixed interval.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	reconciler *Reconciler
	timeout    time.Duration
}

func NewScheduler(r *Reconciler, timeout time.Duration) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		reconciler: r,
		timeout:    timeout,
	}
}

// Start schedules the periodic sync and returns without blocking.
func (s *Scheduler) Start(interval time.Duration) error {
	if _, err := s.scheduler.Every(interval).SingletonMode().Do(s.syncOnce); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) syncOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.reconciler.SyncAll(ctx); err != nil && !errors.Is(err, domain.ErrOffline) {
		log.Printf("[sync] periodic sync: %v", err)
	}
}
