package scheduler

import (
	"context"
	"time"

	"github.com/totoufu/archi-input/internal/ports"
)

// DailyScheduler runs the digest job once immediately and then every 24
// hours using a plain ticker.
type DailyScheduler struct {
	interval time.Duration
	stop     chan struct{}
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler builds a scheduler with a 24h interval.
func NewDailyScheduler() *DailyScheduler {
	return &DailyScheduler{interval: 24 * time.Hour}
}

// Start begins ticking.
func (s *DailyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (s *DailyScheduler) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}
