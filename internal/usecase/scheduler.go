package usecase

import (
	"context"
	"time"

	"CurateAI/internal/ports"
)

// Scheduler wires the cron driver with the run coordinator. A trigger
// that fires while the previous run is still executing is dropped, not
// queued: at most one run is in flight.
type Scheduler struct {
	driver      ports.Scheduler
	coordinator *Coordinator
	busy        chan struct{}
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, coordinator *Coordinator) *Scheduler {
	return &Scheduler{
		driver:      driver,
		coordinator: coordinator,
		busy:        make(chan struct{}, 1),
	}
}

// Start registers the coordinator with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.coordinator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		select {
		case s.busy <- struct{}{}:
		default:
			s.coordinator.logger.Warn("previous run still in flight, skipping trigger",
				"trigger", trigger)
			return
		}
		defer func() { <-s.busy }()

		if _, err := s.coordinator.Execute(ctx, false); err != nil {
			s.coordinator.logger.Error("scheduled run failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
