package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/totoufu/archi-input/internal/domain"
	"github.com/totoufu/archi-input/internal/ports"
)

// Digest wires the daily scheduler driver with the sampler and notifier:
// once a day it recomputes today's picks and pushes them to the outbound
// channel.
type Digest struct {
	driver   ports.Scheduler
	repo     ports.WorkRepository
	notifier ports.Notifier
	location *time.Location
	logger   *slog.Logger
}

// NewDigest returns a helper to start/stop the recurring digest job.
func NewDigest(driver ports.Scheduler, repo ports.WorkRepository, notifier ports.Notifier, location *time.Location, logger *slog.Logger) *Digest {
	if location == nil {
		location = time.UTC
	}
	return &Digest{
		driver:   driver,
		repo:     repo,
		notifier: notifier,
		location: location,
		logger:   logger,
	}
}

// Start registers the digest job with the provided scheduler.
func (d *Digest) Start(ctx context.Context) error {
	if d.driver == nil || d.repo == nil || d.notifier == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := d.publish(ctx, trigger.In(d.location)); err != nil {
			d.warn("digest publish failed", "error", err)
		}
	}

	return d.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (d *Digest) Stop(ctx context.Context) error {
	if d.driver == nil {
		return nil
	}

	return d.driver.Stop(ctx)
}

func (d *Digest) publish(ctx context.Context, day time.Time) error {
	works, err := d.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("load works: %w", err)
	}
	if len(works) == 0 {
		return nil
	}

	picks := TodayPicks(works, day)
	message := FormatDigest(picks, day)
	if message == "" {
		return nil
	}

	return d.notifier.PublishDigest(ctx, message)
}

// FormatDigest renders the picks as a Markdown message.
func FormatDigest(picks domain.Picks, day time.Time) string {
	if len(picks.Main) == 0 && picks.Bonus == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*今日の建築 (%s)*\n\n", day.Format("2006-01-02"))

	for i, w := range picks.Main {
		fmt.Fprintf(&b, "%d. %s", i+1, displayTitle(w))
		if w.Architect != "" {
			fmt.Fprintf(&b, " — %s", w.Architect)
		}
		b.WriteString("\n")
	}

	if picks.Bonus != nil {
		fmt.Fprintf(&b, "\n復習: %s\n", displayTitle(*picks.Bonus))
	}

	return b.String()
}

func displayTitle(w domain.Work) string {
	if w.Title != "" {
		return w.Title
	}
	if w.URL != "" {
		return w.URL
	}
	return w.ID
}

func (d *Digest) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
