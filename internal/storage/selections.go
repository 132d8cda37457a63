package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// SelectionRecord is the audit entry written for every served selection
type SelectionRecord struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Strategy     string    `json:"strategy"`
	Horizon      int       `json:"horizon"`
	Candidates   int       `json:"candidates"`
	BestIndex    int       `json:"best_index"`
	Scores       []float64 `json:"scores"`
	ModelVersion string    `json:"model_version,omitempty"`
	LatencyMs    float64   `json:"latency_ms"`
}

func timeKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

// StoreSelection stores a selection record keyed by timestamp and request ID
func (s *Store) StoreSelection(record SelectionRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if record.Timestamp.UnixNano() < 0 {
		return fmt.Errorf("selection timestamp %s predates the epoch", record.Timestamp)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(selectionsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal selection record: %w", err)
		}

		key := timeKey(record.Timestamp) + "_" + record.RequestID
		return b.Put([]byte(key), data)
	})
}

// GetSelections returns selection records with start <= timestamp <= end,
// oldest first.
func (s *Store) GetSelections(start, end time.Time) ([]SelectionRecord, error) {
	if end.Before(start) {
		return nil, nil
	}
	if start.UnixNano() < 0 {
		start = time.Unix(0, 0)
	}

	records, err := s.getRecordsInRange(selectionsBucket, []byte(timeKey(start)), []byte(timeKey(end)), func(data []byte) (interface{}, error) {
		var rec SelectionRecord
		err := json.Unmarshal(data, &rec)
		return rec, err
	})
	if err != nil {
		return nil, err
	}

	selections := make([]SelectionRecord, len(records))
	for i, record := range records {
		selections[i] = record.(SelectionRecord)
	}
	return selections, nil
}
