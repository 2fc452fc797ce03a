package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
)

// StatsCollector publishes user counts by role and status as gauges
type StatsCollector struct {
	store   Store
	metrics *observability.Metrics
	logger  *observability.Logger
	timeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// NewStatsCollector creates a collector
func NewStatsCollector(store Store, metrics *observability.Metrics, logger *observability.Logger) *StatsCollector {
	return &StatsCollector{
		store:   store,
		metrics: metrics,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Refresh recomputes the gauges once
func (c *StatsCollector) Refresh(ctx context.Context) error {
	counts, err := c.store.CountByRole(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}

	c.metrics.UsersTotal.Reset()
	for _, rc := range counts {
		c.metrics.UsersTotal.WithLabelValues(string(rc.Role), string(rc.Status)).Set(float64(rc.Count))
	}
	return nil
}

// Start refreshes on the cron schedule until Stop
func (c *StatsCollector) Start(schedule string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return fmt.Errorf("stats collector already started")
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(schedule, func() {
		defer observability.RecoverPanic(c.logger, "users stats refresh")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			c.logger.WithError(err).Warn("user stats refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}

	scheduler.Start()
	c.cron = scheduler
	c.logger.WithField("schedule", schedule).Info("user stats collector started")
	return nil
}

// Stop halts the schedule and waits for a running refresh
func (c *StatsCollector) Stop(ctx context.Context) error {
	c.mu.Lock()
	scheduler := c.cron
	c.cron = nil
	c.mu.Unlock()

	if scheduler == nil {
		return nil
	}
	select {
	case <-scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
