package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// SummaryWarmer rebuilds a tenant's summary cache entry.
type SummaryWarmer interface {
	WarmSummary(ctx context.Context, tenantID string) error
}

// TenantSource lists tenants with recent audit activity.
type TenantSource interface {
	ActiveTenants(ctx context.Context, since time.Time) ([]string, error)
}

// SummaryWarmupJob refreshes summary caches ahead of dashboard traffic.
type SummaryWarmupJob struct {
	warmer  SummaryWarmer
	tenants TenantSource
	logger  *slog.Logger
	clock   func() time.Time
}

// NewSummaryWarmupJob initialises the warmup handler.
func NewSummaryWarmupJob(warmer SummaryWarmer, tenants TenantSource, logger *slog.Logger) *SummaryWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryWarmupJob{
		warmer:  warmer,
		tenants: tenants,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the warmup run.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.warmer == nil || j.tenants == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload SummaryWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ActiveWithinHours <= 0 {
		payload.ActiveWithinHours = 24
	}

	start := j.clock()
	since := start.Add(-time.Duration(payload.ActiveWithinHours) * time.Hour)
	tenants, err := j.tenants.ActiveTenants(ctx, since)
	if err != nil {
		return err
	}

	warmed := 0
	for _, tenantID := range tenants {
		if err := j.warmer.WarmSummary(ctx, tenantID); err != nil {
			j.logger.Warn("warm summary", slog.String("tenant", tenantID), slog.Any("error", err))
			continue
		}
		warmed++
	}

	j.logger.Info("completed summary warmup",
		slog.Int("tenants", len(tenants)),
		slog.Int("warmed", warmed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
