package clicks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/linkden/linkden/internal/metrics"
)

// AggregateStore recomputes daily rollups. *repository.Repository
// implements it.
type AggregateStore interface {
	AggregateDay(ctx context.Context, date time.Time) (int, error)
}

// Aggregator folds raw click events into per-link daily rollups.
// Aggregation is a pure recompute: running it twice for the same day
// converges on the same rollup rows.
type Aggregator struct {
	store     AggregateStore
	scheduler *gocron.Scheduler
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewAggregator creates an aggregator. Call Start to schedule the
// daily run.
func NewAggregator(store AggregateStore, recorder metrics.Recorder, logger *slog.Logger) *Aggregator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Aggregator{
		store:     store,
		scheduler: gocron.NewScheduler(time.UTC),
		metrics:   recorder,
		logger:    logger.With("component", "clicks.aggregator"),
	}
}

// Aggregate recomputes the rollups for one calendar day (UTC).
func (a *Aggregator) Aggregate(ctx context.Context, date time.Time) error {
	day := date.UTC().Truncate(24 * time.Hour)

	start := time.Now()
	rows, err := a.store.AggregateDay(ctx, day)
	if err != nil {
		a.metrics.IncAggregationRun("failed")
		a.logger.Error("daily aggregation failed", "date", day.Format(time.DateOnly), "error", err)
		return fmt.Errorf("aggregate %s: %w", day.Format(time.DateOnly), err)
	}

	a.metrics.IncAggregationRun("success")
	a.logger.Info("daily aggregation complete",
		"date", day.Format(time.DateOnly),
		"links", rows,
		"duration", time.Since(start),
	)
	return nil
}

// Start schedules a daily run at the given UTC wall time ("HH:MM")
// aggregating the previous day. It covers late-arriving clicks for
// the current day as well, since yesterday's recompute runs after
// midnight and the previous run already wrote today's partial rows.
func (a *Aggregator) Start(at string) error {
	_, err := a.scheduler.Every(1).Day().At(at).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		if err := a.Aggregate(ctx, yesterday); err != nil {
			return
		}
		// Pick up clicks that landed after midnight but belong to the
		// current day's partially built rollup.
		_ = a.Aggregate(ctx, time.Now().UTC())
	})
	if err != nil {
		return fmt.Errorf("schedule aggregation: %w", err)
	}

	a.scheduler.StartAsync()
	a.logger.Info("aggregation scheduled", "at", at)
	return nil
}

// Stop halts the schedule. Safe to call when Start was never called.
func (a *Aggregator) Stop() {
	a.scheduler.Stop()
}
