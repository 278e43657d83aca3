package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/trailview/trailview/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultSummaryWindow = 30 * 24 * time.Hour
	defaultRetentionDays = 180
)

// Publisher pushes freshly stored records to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, tenantID string, records []Record) error
}

// Service coordinates audit record storage, querying and fan-out.
type Service struct {
	repo      Repository
	publisher Publisher
	cache     *Cache
	validate  *validator.Validate
	logger    *slog.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewService constructs the audit service.
func NewService(repo Repository, publisher Publisher, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of records plus the authoritative filtered total,
// newest first.
func (s *Service) List(ctx context.Context, tenantID string, filters Filters) (ListResult, error) {
	if s.repo == nil {
		return ListResult{}, errors.New("audit: repository not configured")
	}
	filters.Limit = shared.ClampLimit(filters.Limit, defaultPageSize, maxPageSize)
	filters.Offset = shared.ClampOffset(filters.Offset)
	records, total, err := s.repo.List(ctx, tenantID, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Data: records, Total: total}, nil
}

// Ingest validates and stores a new record, then publishes it to the live
// stream. The id and stored-at timestamp are always server-assigned.
func (s *Service) Ingest(ctx context.Context, tenantID string, rec Record) (Record, error) {
	if s.repo == nil {
		return Record{}, errors.New("audit: repository not configured")
	}
	if rec.Action == "" || rec.ResourceType == "" {
		return Record{}, fmt.Errorf("audit: action and resource_type are required: %w", ErrInvalidRecord)
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}
	if !ValidStatus(rec.Status) {
		return Record{}, fmt.Errorf("audit: unknown status %q: %w", rec.Status, ErrInvalidRecord)
	}
	if rec.Severity == "" {
		rec.Severity = SeverityLow
	}
	if !ValidSeverity(rec.Severity) {
		return Record{}, fmt.Errorf("audit: unknown severity %q: %w", rec.Severity, ErrInvalidRecord)
	}

	now := s.now()
	rec.ID = uuid.NewString()
	rec.TenantID = tenantID
	rec.StoredAt = now
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		return Record{}, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, tenantID, []Record{rec}); err != nil {
			// Fan-out is best effort; the record is durably stored.
			s.logger.Warn("publish audit record", slog.String("tenant", tenantID), slog.Any("error", err))
		}
	}
	return rec, nil
}

// Summary returns cached aggregate counts for the tenant. Concurrent cache
// misses collapse into a single repository query.
func (s *Service) Summary(ctx context.Context, tenantID string, from, to time.Time) (Summary, error) {
	if s.repo == nil {
		return Summary{}, errors.New("audit: repository not configured")
	}
	// The key is derived from the requested bounds, before defaulting, so
	// explicit ranges never share a cache entry with the default window.
	key := summaryCacheKey(tenantID, from, to)
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultSummaryWindow)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
			return s.repo.Summary(ctx, tenantID, from, to)
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// WarmSummary rebuilds the tenant's default-window summary cache entry.
func (s *Service) WarmSummary(ctx context.Context, tenantID string) error {
	if err := s.cache.Invalidate(ctx, summaryCacheKey(tenantID, time.Time{}, time.Time{})); err != nil {
		return err
	}
	_, err := s.Summary(ctx, tenantID, time.Time{}, time.Time{})
	return err
}

// Retention returns the tenant's purge policy, falling back to the default
// window when none has been stored yet.
func (s *Service) Retention(ctx context.Context, tenantID string) (RetentionSettings, error) {
	if s.repo == nil {
		return RetentionSettings{}, errors.New("audit: repository not configured")
	}
	settings, err := s.repo.GetRetention(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return RetentionSettings{TenantID: tenantID, RetentionDays: defaultRetentionDays}, nil
	}
	if err != nil {
		return RetentionSettings{}, err
	}
	return settings, nil
}

// UpdateRetention validates and stores a new retention window. On any error
// the stored value is left unchanged.
func (s *Service) UpdateRetention(ctx context.Context, tenantID string, retentionDays int) (RetentionSettings, error) {
	if s.repo == nil {
		return RetentionSettings{}, errors.New("audit: repository not configured")
	}
	settings := RetentionSettings{TenantID: tenantID, RetentionDays: retentionDays}
	if err := s.validate.StructCtx(ctx, settings); err != nil {
		return RetentionSettings{}, fmt.Errorf("audit: retention_days %d not allowed: %w", retentionDays, ErrInvalidRetention)
	}
	if err := s.repo.PutRetention(ctx, settings); err != nil {
		return RetentionSettings{}, err
	}
	return s.Retention(ctx, tenantID)
}

// Export returns every record matching the filters, newest first, without
// paging. Used by the CSV/JSON download endpoint.
func (s *Service) Export(ctx context.Context, tenantID string, filters Filters) ([]Record, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	filters.Limit = maxExportRows
	filters.Offset = 0
	records, _, err := s.repo.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	return records, nil
}

const maxExportRows = 10000

// Validation errors surfaced to handlers.
var (
	ErrInvalidRecord    = errors.New("invalid audit record")
	ErrInvalidRetention = errors.New("invalid retention window")
)

func summaryCacheKey(tenantID string, from, to time.Time) string {
	key := "trailview:summary:" + tenantID
	if from.IsZero() && to.IsZero() {
		return key
	}
	return key + ":" + from.UTC().Format(time.RFC3339) + ".." + to.UTC().Format(time.RFC3339)
}
