package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aurum-erp/aurum-erp/internal/observability"
	"github.com/aurum-erp/aurum-erp/internal/repricer"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRepriceCatalog recomputes catalog prices against a rate.
	TaskRepriceCatalog = "reprice:catalog"
	// TaskSweepRates deactivates rates whose validity window has passed.
	TaskSweepRates = "rates:sweep"
	// TaskPruneIdempotency drops idempotency keys past their retention.
	TaskPruneIdempotency = "idempotency:prune"
)

// idempotencyRetention is how long a processed key keeps blocking replays.
const idempotencyRetention = 24 * time.Hour

// RepricePayload selects the rate and scope of a background reprice run.
type RepricePayload struct {
	RateID         int64           `json:"rate_id"`
	Filter         repricer.Filter `json:"filter"`
	SkipOverridden bool            `json:"skip_overridden"`
	ActorID        int64           `json:"actor_id"`
}

// NewRepriceTask constructs an Asynq task for a catalog reprice.
func NewRepriceTask(payload RepricePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRepriceCatalog, data, asynq.Queue(QueueDefault)), nil
}

// NewSweepRatesTask constructs an Asynq task for the rate sweep.
func NewSweepRatesTask() *asynq.Task {
	return asynq.NewTask(TaskSweepRates, nil, asynq.Queue(QueueDefault))
}

// NewPruneIdempotencyTask constructs an Asynq task for the key prune.
func NewPruneIdempotencyTask() *asynq.Task {
	return asynq.NewTask(TaskPruneIdempotency, nil, asynq.Queue(QueueDefault))
}

// RateSweeper is the slice of the rate master the sweep task needs.
type RateSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// KeyPruner is the slice of the idempotency store the prune task needs.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewRepriceHandler processes TaskRepriceCatalog tasks. Metrics may be nil.
func NewRepriceHandler(logger *slog.Logger, svc *repricer.Service, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RepricePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		started := time.Now()
		result, err := svc.Commit(ctx, payload.RateID, payload.Filter, payload.SkipOverridden, payload.ActorID)
		if err != nil {
			if metrics != nil {
				metrics.ObserveJob(TaskRepriceCatalog, "error")
			}
			logger.Error("catalog reprice failed",
				slog.Int64("rate_id", payload.RateID),
				slog.Any("error", err))
			return err
		}
		if metrics != nil {
			metrics.ObserveJob(TaskRepriceCatalog, "ok")
		}
		logger.Info("catalog repriced",
			slog.Int64("rate_id", payload.RateID),
			slog.Int("updated", len(result.ToUpdate)),
			slog.Int("skipped", len(result.Skipped)),
			slog.Duration("took", time.Since(started)))
		return nil
	}
}

// NewSweepRatesHandler processes TaskSweepRates tasks. Metrics may be nil.
func NewSweepRatesHandler(logger *slog.Logger, sweeper RateSweeper, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		affected, err := sweeper.SweepExpired(ctx)
		if err != nil {
			if metrics != nil {
				metrics.ObserveJob(TaskSweepRates, "error")
			}
			logger.Error("rate sweep failed", slog.Any("error", err))
			return err
		}
		if metrics != nil {
			metrics.ObserveJob(TaskSweepRates, "ok")
		}
		if affected > 0 {
			logger.Info("expired rates deactivated", slog.Int64("count", affected))
		}
		return nil
	}
}

// NewPruneIdempotencyHandler processes TaskPruneIdempotency tasks.
// Metrics may be nil.
func NewPruneIdempotencyHandler(logger *slog.Logger, pruner KeyPruner, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := pruner.Cleanup(ctx, idempotencyRetention); err != nil {
			if metrics != nil {
				metrics.ObserveJob(TaskPruneIdempotency, "error")
			}
			logger.Error("idempotency prune failed", slog.Any("error", err))
			return err
		}
		if metrics != nil {
			metrics.ObserveJob(TaskPruneIdempotency, "ok")
		}
		return nil
	}
}
