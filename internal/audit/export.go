package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Exporter serialises audit records for file download.
type Exporter struct {
	titler cases.Caser
}

// NewExporter constructs an Exporter.
func NewExporter() *Exporter {
	return &Exporter{titler: cases.Title(language.English)}
}

var exportColumns = []string{
	"id", "occurred_at", "actor", "action", "resource_type", "resource_id",
	"status", "severity", "ip", "request_id", "service_name", "description",
	"error_message",
}

// WriteCSV renders the records as a CSV document with humanized headers.
func (e *Exporter) WriteCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = e.titler.String(strings.ReplaceAll(col, "_", " "))
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.OccurredAt.UTC().Format(time.RFC3339),
			rec.Actor.DisplayName(),
			string(rec.Action),
			rec.ResourceType,
			rec.ResourceID,
			string(rec.Status),
			string(rec.Severity),
			rec.IP,
			rec.RequestID,
			rec.ServiceName,
			rec.Description,
			rec.ErrorMessage,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON renders the records as an indented JSON array.
func (e *Exporter) WriteJSON(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: write json export: %w", err)
	}
	return data, nil
}
