package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"geopipe/internal/logging"
)

// Sweeper periodically deletes expired durable cache rows.
type Sweeper struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewSweeper schedules a sweep of the store's durable tier every
// interval. Call Start to begin and Stop to shut down.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create sweep scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			store.SweepDurable(context.Background())
		}),
		gocron.WithName("cache-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep job: %w", err)
	}
	return &Sweeper{
		scheduler: scheduler,
		logger:    logging.Default(logger).With("component", "cache-sweep"),
	}, nil
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() {
	s.scheduler.Start()
	s.logger.Info("cache sweeper started")
}

// Stop shuts the scheduler down and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
