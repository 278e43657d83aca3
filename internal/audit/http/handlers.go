// Package audithttp exposes the audit trail REST and streaming endpoints.
package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trailview/trailview/internal/audit"
	"github.com/trailview/trailview/internal/platform/httpx"
	"github.com/trailview/trailview/internal/shared"
)

const (
	defaultHeartbeat = 25 * time.Second
	maxDateRange     = 365 * 24 * time.Hour
)

// RecordService defines the business contract for audit data.
type RecordService interface {
	List(ctx context.Context, tenantID string, filters audit.Filters) (audit.ListResult, error)
	Ingest(ctx context.Context, tenantID string, rec audit.Record) (audit.Record, error)
	Summary(ctx context.Context, tenantID string, from, to time.Time) (audit.Summary, error)
	Retention(ctx context.Context, tenantID string) (audit.RetentionSettings, error)
	UpdateRetention(ctx context.Context, tenantID string, retentionDays int) (audit.RetentionSettings, error)
	Export(ctx context.Context, tenantID string, filters audit.Filters) ([]audit.Record, error)
}

// Exporter writes audit record exports.
type Exporter interface {
	WriteCSV(records []audit.Record) ([]byte, error)
	WriteJSON(records []audit.Record) ([]byte, error)
}

// Subscription is a live feed of record batches.
type Subscription interface {
	Records() <-chan []audit.Record
	Close() error
}

// Subscriber opens live subscriptions scoped to a tenant.
type Subscriber interface {
	Subscribe(ctx context.Context, tenantID string) (Subscription, error)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, tenantID string) (Subscription, error)

// Subscribe implements Subscriber.
func (f SubscriberFunc) Subscribe(ctx context.Context, tenantID string) (Subscription, error) {
	return f(ctx, tenantID)
}

// Handler serves the audit trail API.
type Handler struct {
	logger     *slog.Logger
	service    RecordService
	exporter   Exporter
	subscriber Subscriber
	heartbeat  time.Duration
	now        func() time.Time
}

// HandlerConfig collects Handler dependencies.
type HandlerConfig struct {
	Logger     *slog.Logger
	Service    RecordService
	Exporter   Exporter
	Subscriber Subscriber
	Heartbeat  time.Duration
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		logger:     logger,
		service:    cfg.Service,
		exporter:   cfg.Exporter,
		subscriber: cfg.Subscriber,
		heartbeat:  heartbeat,
		now:        time.Now,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), tenantID, filters)
	if err != nil {
		h.respondServiceError(w, "list audit logs", err)
		return
	}
	if result.Data == nil {
		result.Data = []audit.Record{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	var rec audit.Record
	if err := httpx.DecodeJSON(r, &rec); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be a JSON audit record")
		return
	}
	if rec.RequestID == "" {
		rec.RequestID = shared.RequestIDFromContext(r.Context())
	}
	stored, err := h.service.Ingest(r.Context(), tenantID, rec)
	if err != nil {
		h.respondServiceError(w, "ingest audit record", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	from, to, err := parseDateRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	summary, err := h.service.Summary(r.Context(), tenantID, from, to)
	if err != nil {
		h.respondServiceError(w, "load audit summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGetRetention(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	settings, err := h.service.Retention(r.Context(), tenantID)
	if err != nil {
		h.respondServiceError(w, "load retention", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) handlePutRetention(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	var body struct {
		RetentionDays int `json:"retention_days"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must contain retention_days")
		return
	}
	settings, err := h.service.UpdateRetention(r.Context(), tenantID, body.RetentionDays)
	if err != nil {
		h.respondServiceError(w, "update retention", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	tenantID := shared.TenantFromContext(r.Context())
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "format must be csv or json")
		return
	}

	records, err := h.service.Export(r.Context(), tenantID, filters)
	if err != nil {
		h.respondServiceError(w, "export audit logs", err)
		return
	}

	var payload []byte
	contentType := "text/csv; charset=utf-8"
	if format == "json" {
		payload, err = h.exporter.WriteJSON(records)
		contentType = "application/json"
	} else {
		payload, err = h.exporter.WriteCSV(records)
	}
	if err != nil {
		h.respondServiceError(w, "encode export", err)
		return
	}

	filename := fmt.Sprintf("audit-logs-%s.%s", h.now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write export", slog.Any("error", err))
	}
}

type streamFrame struct {
	Type string         `json:"type"`
	Logs []audit.Record `json:"logs,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if h.subscriber == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	tenantID := shared.TenantFromContext(r.Context())
	sub, err := h.subscriber.Subscribe(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("open stream subscription", slog.String("tenant", tenantID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Stream Unavailable", "")
		return
	}
	defer func() {
		if err := sub.Close(); err != nil {
			h.logger.Warn("close stream subscription", slog.Any("error", err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeFrame(w, streamFrame{Type: "connected"}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case records, ok := <-sub.Records():
			if !ok {
				return
			}
			if len(records) == 0 {
				continue
			}
			if err := writeFrame(w, streamFrame{Type: "update", Logs: records}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, audit.ErrInvalidRecord), errors.Is(err, audit.ErrInvalidRetention):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, audit.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, audit.ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		Action:   strings.TrimSpace(q.Get("action")),
		Resource: strings.TrimSpace(q.Get("resource")),
		Status:   strings.TrimSpace(q.Get("status")),
		Severity: strings.TrimSpace(q.Get("severity")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	if filters.Status != "" && !audit.ValidStatus(audit.Status(filters.Status)) {
		return audit.Filters{}, fmt.Errorf("unknown status %q", filters.Status)
	}
	if filters.Severity != "" && !audit.ValidSeverity(audit.Severity(filters.Severity)) {
		return audit.Filters{}, fmt.Errorf("unknown severity %q", filters.Severity)
	}

	var err error
	if filters.From, filters.To, err = parseDates(q.Get("from_date"), q.Get("to_date")); err != nil {
		return audit.Filters{}, err
	}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		filters.Limit, err = strconv.Atoi(raw)
		if err != nil || filters.Limit < 0 {
			return audit.Filters{}, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		filters.Offset, err = strconv.Atoi(raw)
		if err != nil || filters.Offset < 0 {
			return audit.Filters{}, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	if order := strings.ToUpper(strings.TrimSpace(q.Get("sort_order"))); order != "" && order != "DESC" {
		return audit.Filters{}, fmt.Errorf("sort_order must be DESC")
	}
	return filters, nil
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	return parseDates(q.Get("from_date"), q.Get("to_date"))
}

func parseDates(fromRaw, toRaw string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if raw := strings.TrimSpace(fromRaw); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from_date must be RFC3339")
		}
	}
	if raw := strings.TrimSpace(toRaw); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to_date must be RFC3339")
		}
	}
	if !from.IsZero() && !to.IsZero() {
		if from.After(to) {
			return time.Time{}, time.Time{}, fmt.Errorf("from_date must not be after to_date")
		}
		if to.Sub(from) > maxDateRange {
			return time.Time{}, time.Time{}, fmt.Errorf("date range must not exceed one year")
		}
	}
	return from, to, nil
}
