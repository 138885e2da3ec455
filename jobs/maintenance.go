package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/custshop/custshop/internal/jobs"
)

// CleanupPayload overrides the retention of a cleanup run. Zero keeps the job default.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than,omitempty"`
}

// NewCartPurgeTask builds a cart purge task.
func NewCartPurgeTask(olderThan time.Duration) *asynq.Task {
	return newCleanupTask(TaskTypeCartPurge, olderThan)
}

// NewIdempotencyCleanupTask builds an idempotency cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) *asynq.Task {
	return newCleanupTask(TaskTypeIdempotencyCleanup, olderThan)
}

func newCleanupTask(typ string, olderThan time.Duration) *asynq.Task {
	data, _ := json.Marshal(CleanupPayload{OlderThan: olderThan})
	return asynq.NewTask(typ, data, asynq.MaxRetry(3), asynq.Unique(10*time.Minute))
}

// Remover deletes rows older than a retention window and reports the count.
type Remover func(ctx context.Context, olderThan time.Duration) (int64, error)

// CleanupJob runs a Remover for a scheduled cleanup task.
type CleanupJob struct {
	Name      string
	Retention time.Duration
	Remove    Remover
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes one cleanup task.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Remove == nil {
		return fmt.Errorf("cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := j.Retention
	if payload.OlderThan > 0 {
		retention = payload.OlderThan
	}
	if retention <= 0 {
		return fmt.Errorf("%s: retention must be positive: %w", j.Name, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(j.Name)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Remove(ctx, retention)
	if err != nil {
		loggerOr(j.Logger).Error("cleanup failed", slog.String("job", j.Name), slog.Any("error", err))
		return err
	}
	j.Metrics.AddRemoved(j.Name, removed)
	loggerOr(j.Logger).Info("cleanup finished", slog.String("job", j.Name), slog.Int64("removed", removed), slog.Duration("older_than", retention))
	return nil
}

// TaskHandler returns the registration for the worker mux.
func (j *CleanupJob) TaskHandler() TaskHandler {
	return TaskHandler{Type: j.Name, Handler: j.Handle}
}
