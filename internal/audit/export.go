package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

var csvHeader = []string{
	"id", "timestamp", "actor_id", "actor_role", "action", "target_type", "target_id",
	"status", "ip_address", "user_agent", "location", "details",
}

// WriteCSV renders entries as CSV with a header row.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("audit: csv header: %w", err)
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("audit: csv details: %w", err)
		}
		record := []string{
			e.ID.String(),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.ActorID,
			e.ActorRole,
			string(e.Action),
			string(e.TargetType),
			e.TargetID,
			string(e.Status),
			e.IPAddress,
			e.UserAgent,
			e.Location,
			string(details),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
