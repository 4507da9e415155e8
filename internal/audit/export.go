package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat selects the serialization used by ExportLogs.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ExportOptions scopes an audit export. UserID is required since
// exports back per-user data requests; From/To bound the time range
// inclusively and Limit caps the row count (0 means unlimited).
type ExportOptions struct {
	Format ExportFormat
	From   time.Time
	To     time.Time
	UserID string
	Limit  int
}

var csvHeader = []string{
	"ID", "Timestamp (UTC)", "User ID", "Entity Type", "Entity ID",
	"Action", "Outcome", "Request ID", "IP Address", "User Agent",
	"Previous Hash",
}

// ExportLogs renders the user's audit trail in the requested format.
func ExportLogs(repo Repository, opts ExportOptions) ([]byte, error) {
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatJSON {
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("export requires a user filter")
	}

	// The limit applies after time filtering, so fetch everything.
	logs, err := repo.QueryByUser(opts.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}

	logs = filterByTimeRange(logs, opts.From, opts.To)
	if opts.Limit > 0 && len(logs) > opts.Limit {
		logs = logs[:opts.Limit]
	}

	if opts.Format == ExportFormatCSV {
		return exportToCSV(logs)
	}
	return exportToJSON(logs)
}

func filterByTimeRange(logs []*AuditLog, from, to time.Time) []*AuditLog {
	if from.IsZero() && to.IsZero() {
		return logs
	}
	var filtered []*AuditLog
	for _, log := range logs {
		if !from.IsZero() && log.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && log.CreatedAt.After(to) {
			continue
		}
		filtered = append(filtered, log)
	}
	return filtered
}

func exportToCSV(logs []*AuditLog) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, log := range logs {
		row := []string{
			log.ID,
			log.CreatedAt.Format(time.RFC3339),
			log.UserID,
			log.EntityType,
			log.EntityID,
			log.Action,
			log.Outcome,
			log.RequestID,
			log.IPAddress,
			log.UserAgent,
			log.PreviousHash,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func exportToJSON(logs []*AuditLog) ([]byte, error) {
	type exportLog struct {
		ID           string `json:"id"`
		Timestamp    string `json:"timestamp"`
		UserID       string `json:"user_id"`
		EntityType   string `json:"entity_type"`
		EntityID     string `json:"entity_id"`
		Action       string `json:"action"`
		Outcome      string `json:"outcome"`
		RequestID    string `json:"request_id,omitempty"`
		IPAddress    string `json:"ip_address,omitempty"`
		UserAgent    string `json:"user_agent,omitempty"`
		PreviousHash string `json:"previous_hash,omitempty"`
	}

	out := make([]exportLog, len(logs))
	for i, log := range logs {
		out[i] = exportLog{
			ID:           log.ID,
			Timestamp:    log.CreatedAt.Format(time.RFC3339),
			UserID:       log.UserID,
			EntityType:   log.EntityType,
			EntityID:     log.EntityID,
			Action:       log.Action,
			Outcome:      log.Outcome,
			RequestID:    log.RequestID,
			IPAddress:    log.IPAddress,
			UserAgent:    log.UserAgent,
			PreviousHash: log.PreviousHash,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}
