package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/trailview/trailview/internal/audit"
)

// RetentionCleanupJob deletes audit records older than each tenant's
// retention window.
type RetentionCleanupJob struct {
	repo   audit.Repository
	logger *slog.Logger
	clock  func() time.Time
}

// NewRetentionCleanupJob initialises the cleanup handler.
func NewRetentionCleanupJob(repo audit.Repository, logger *slog.Logger) *RetentionCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionCleanupJob{
		repo:   repo,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the cleanup run.
func (j *RetentionCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.repo == nil {
		return errors.New("retention cleanup: handler not configured")
	}
	var payload RetentionCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.clock()
	var policies []audit.RetentionSettings
	if payload.TenantID != "" {
		settings, err := j.repo.GetRetention(ctx, payload.TenantID)
		if err != nil {
			if errors.Is(err, audit.ErrNotFound) {
				j.logger.Info("no retention policy stored, skipping", slog.String("tenant", payload.TenantID))
				return nil
			}
			return err
		}
		policies = []audit.RetentionSettings{settings}
	} else {
		var err error
		policies, err = j.repo.ListRetention(ctx)
		if err != nil {
			return err
		}
	}

	var totalDeleted int64
	for _, policy := range policies {
		cutoff := start.AddDate(0, 0, -policy.RetentionDays)
		deleted, err := j.repo.PurgeOlderThan(ctx, policy.TenantID, cutoff, start)
		if err != nil {
			j.logger.Error("purge tenant records",
				slog.String("tenant", policy.TenantID),
				slog.Any("error", err),
			)
			return err
		}
		totalDeleted += deleted
		if deleted > 0 {
			j.logger.Info("purged expired audit records",
				slog.String("tenant", policy.TenantID),
				slog.Int("retention_days", policy.RetentionDays),
				slog.Int64("deleted", deleted),
			)
		}
	}

	j.logger.Info("completed retention cleanup",
		slog.Int("tenants", len(policies)),
		slog.Int64("deleted", totalDeleted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
