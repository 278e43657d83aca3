package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persistence errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

const uniqueViolationCode = "23505"

// Repository provides access to audit storage.
type Repository interface {
	List(ctx context.Context, tenantID string, filters Filters) ([]Record, int, error)
	Insert(ctx context.Context, rec Record) error
	Summary(ctx context.Context, tenantID string, from, to time.Time) (Summary, error)
	GetRetention(ctx context.Context, tenantID string) (RetentionSettings, error)
	PutRetention(ctx context.Context, settings RetentionSettings) error
	ListRetention(ctx context.Context) ([]RetentionSettings, error)
	PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time, deletedAt time.Time) (int64, error)
	ActiveTenants(ctx context.Context, since time.Time) ([]string, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const recordColumns = `id, tenant_id, actor_user_id, actor_name, actor_email, action,
	resource_type, resource_id, status, severity, ip, user_agent, request_id,
	description, before_state, after_state, metadata, error_message, service_name,
	occurred_at, stored_at`

func (r *repository) List(ctx context.Context, tenantID string, filters Filters) ([]Record, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2

	if filters.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argPos))
		args = append(args, filters.Action)
		argPos++
	}
	if filters.Resource != "" {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argPos))
		args = append(args, filters.Resource)
		argPos++
	}
	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filters.Status)
		argPos++
	}
	if filters.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argPos))
		args = append(args, filters.Severity)
		argPos++
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(description ILIKE $%d OR actor_name ILIKE $%d OR actor_email ILIKE $%d OR resource_id ILIKE $%d)",
			argPos, argPos, argPos, argPos))
		args = append(args, pattern)
		argPos++
	}
	if !filters.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", argPos))
		args = append(args, filters.From)
		argPos++
	}
	if !filters.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("occurred_at <= $%d", argPos))
		args = append(args, filters.To)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit: count records: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_logs %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, whereClause, argPos, argPos+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: list records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, filters.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *repository) Insert(ctx context.Context, rec Record) error {
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	const query = `INSERT INTO audit_logs (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.TenantID, nullable(rec.Actor.UserID), nullable(rec.Actor.Name), nullable(rec.Actor.Email),
		rec.Action, rec.ResourceType, nullable(rec.ResourceID), rec.Status, rec.Severity,
		nullable(rec.IP), nullable(rec.UserAgent), nullable(rec.RequestID), nullable(rec.Description),
		rawOrNil(rec.Before), rawOrNil(rec.After), metadata, nullable(rec.ErrorMessage),
		nullable(rec.ServiceName), rec.OccurredAt, rec.StoredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrAlreadyExists
		}
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

func (r *repository) Summary(ctx context.Context, tenantID string, from, to time.Time) (Summary, error) {
	summary := Summary{From: from, To: to}

	const totalQuery = `SELECT COUNT(*) FROM audit_logs WHERE tenant_id = $1 AND occurred_at BETWEEN $2 AND $3`
	if err := r.pool.QueryRow(ctx, totalQuery, tenantID, from, to).Scan(&summary.Total); err != nil {
		return Summary{}, fmt.Errorf("audit: summary total: %w", err)
	}

	groups := []struct {
		column string
		dest   *[]CountBucket
		limit  int
	}{
		{"action", &summary.ByAction, 20},
		{"resource_type", &summary.ByResource, 20},
		{"status", &summary.ByStatus, 10},
		{"severity", &summary.BySeverity, 10},
		{"COALESCE(NULLIF(actor_name, ''), 'system')", &summary.TopActors, 10},
	}
	for _, g := range groups {
		query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM audit_logs
			WHERE tenant_id = $1 AND occurred_at BETWEEN $2 AND $3
			GROUP BY key ORDER BY count DESC LIMIT %d`, g.column, g.limit)
		buckets, err := r.queryBuckets(ctx, query, tenantID, from, to)
		if err != nil {
			return Summary{}, err
		}
		*g.dest = buckets
	}

	failQuery := fmt.Sprintf(`SELECT %s FROM audit_logs
		WHERE tenant_id = $1 AND occurred_at BETWEEN $2 AND $3 AND status = 'FAILURE'
		ORDER BY occurred_at DESC LIMIT 10`, recordColumns)
	rows, err := r.pool.Query(ctx, failQuery, tenantID, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("audit: summary failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Summary{}, err
		}
		summary.RecentFailures = append(summary.RecentFailures, rec)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (r *repository) queryBuckets(ctx context.Context, query string, args ...interface{}) ([]CountBucket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: summary buckets: %w", err)
	}
	defer rows.Close()
	var buckets []CountBucket
	for rows.Next() {
		var b CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (r *repository) GetRetention(ctx context.Context, tenantID string) (RetentionSettings, error) {
	const query = `SELECT tenant_id, retention_days, last_cleanup_at, logs_deleted
		FROM audit_retention WHERE tenant_id = $1`
	var settings RetentionSettings
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&settings.TenantID, &settings.RetentionDays, &settings.LastCleanupAt, &settings.LogsDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return RetentionSettings{}, ErrNotFound
	}
	if err != nil {
		return RetentionSettings{}, fmt.Errorf("audit: get retention: %w", err)
	}
	return settings, nil
}

func (r *repository) PutRetention(ctx context.Context, settings RetentionSettings) error {
	const query = `INSERT INTO audit_retention (tenant_id, retention_days)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET retention_days = EXCLUDED.retention_days`
	if _, err := r.pool.Exec(ctx, query, settings.TenantID, settings.RetentionDays); err != nil {
		return fmt.Errorf("audit: put retention: %w", err)
	}
	return nil
}

func (r *repository) ListRetention(ctx context.Context) ([]RetentionSettings, error) {
	const query = `SELECT tenant_id, retention_days, last_cleanup_at, logs_deleted
		FROM audit_retention ORDER BY tenant_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("audit: list retention: %w", err)
	}
	defer rows.Close()
	var out []RetentionSettings
	for rows.Next() {
		var settings RetentionSettings
		if err := rows.Scan(&settings.TenantID, &settings.RetentionDays, &settings.LastCleanupAt, &settings.LogsDeleted); err != nil {
			return nil, err
		}
		out = append(out, settings)
	}
	return out, rows.Err()
}

func (r *repository) PurgeOlderThan(ctx context.Context, tenantID string, cutoff time.Time, deletedAt time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM audit_logs WHERE tenant_id = $1 AND occurred_at < $2`, tenantID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	deleted := tag.RowsAffected()
	_, err = r.pool.Exec(ctx,
		`UPDATE audit_retention SET last_cleanup_at = $2, logs_deleted = logs_deleted + $3 WHERE tenant_id = $1`,
		tenantID, deletedAt, deleted)
	if err != nil {
		return deleted, fmt.Errorf("audit: record cleanup: %w", err)
	}
	return deleted, nil
}

func (r *repository) ActiveTenants(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT tenant_id FROM audit_logs WHERE stored_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("audit: active tenants: %w", err)
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func scanRecord(rows pgx.Rows) (Record, error) {
	var rec Record
	var actorUserID, actorName, actorEmail *string
	var resourceID, ip, userAgent, requestID *string
	var description, errorMessage, serviceName *string
	var beforeState, afterState, metadataRaw []byte
	err := rows.Scan(
		&rec.ID, &rec.TenantID, &actorUserID, &actorName, &actorEmail, &rec.Action,
		&rec.ResourceType, &resourceID, &rec.Status, &rec.Severity, &ip, &userAgent,
		&requestID, &description, &beforeState, &afterState, &metadataRaw,
		&errorMessage, &serviceName, &rec.OccurredAt, &rec.StoredAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("audit: scan record: %w", err)
	}
	rec.Actor = Actor{UserID: deref(actorUserID), Name: deref(actorName), Email: deref(actorEmail)}
	rec.ResourceID = deref(resourceID)
	rec.IP = deref(ip)
	rec.UserAgent = deref(userAgent)
	rec.RequestID = deref(requestID)
	rec.Description = deref(description)
	rec.ErrorMessage = deref(errorMessage)
	rec.ServiceName = deref(serviceName)
	if len(beforeState) > 0 {
		rec.Before = json.RawMessage(beforeState)
	}
	if len(afterState) > 0 {
		rec.After = json.RawMessage(afterState)
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("audit: decode metadata: %w", err)
		}
	}
	return rec, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("audit: encode metadata: %w", err)
	}
	return data, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
