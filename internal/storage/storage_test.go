package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bayesian-melody-predictor/internal/dataset"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, dbFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "nested")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}

	// Closing twice is harmless
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestPutSequence(t *testing.T) {
	store := newTestStore(t)

	row := dataset.Row{ID: "7", Sequence: dataset.Sequence{0.1, 0.2, 0.3}}
	if err := store.PutSequence(row); err != nil {
		t.Fatalf("Failed to store sequence: %v", err)
	}

	// Replacing keeps a single entry
	row.Sequence = dataset.Sequence{0.4, 0.5}
	if err := store.PutSequence(row); err != nil {
		t.Fatalf("Failed to replace sequence: %v", err)
	}

	rows, err := store.Rows()
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if len(rows[0].Sequence) != 2 || rows[0].Sequence[1] != 0.5 {
		t.Errorf("Unexpected sequence %v", rows[0].Sequence)
	}

	if err := store.PutSequence(dataset.Row{Sequence: dataset.Sequence{0.1}}); err == nil {
		t.Error("Expected error for empty id")
	}
}

func TestImportRows(t *testing.T) {
	store := newTestStore(t)

	rows := []dataset.Row{
		{ID: "a", Sequence: dataset.Sequence{0.1, 0.2}},
		{ID: "", Sequence: dataset.Sequence{0.9}},
		{ID: "b", Sequence: dataset.Sequence{0.3, 0.4, 0.5}},
	}
	n, err := store.ImportRows(rows)
	if err != nil {
		t.Fatalf("Failed to import rows: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows written, got %d", n)
	}

	count, err := store.CountSequences()
	if err != nil {
		t.Fatalf("Failed to count sequences: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 sequences, got %d", count)
	}

	got, err := store.Rows()
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("Unexpected rows %+v", got)
	}
	if got[1].Sequence[2] != 0.5 {
		t.Errorf("Expected 0.5, got %f", got[1].Sequence[2])
	}
}

func TestRows_Empty(t *testing.T) {
	store := newTestStore(t)

	rows, err := store.Rows()
	if err != nil {
		t.Fatalf("Failed to read rows: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestGetSelections(t *testing.T) {
	store := newTestStore(t)

	now := time.Now().UTC()
	records := []SelectionRecord{
		{RequestID: "r1", Timestamp: now, Strategy: "composite", Horizon: 8, BestIndex: 0, Scores: []float64{0.1, 0.4}},
		{RequestID: "r2", Timestamp: now.Add(time.Second), Strategy: "moving-average", Horizon: 8, BestIndex: 1},
		{RequestID: "r3", Timestamp: now.Add(10 * time.Second), Strategy: "composite", Horizon: 10}, // Outside range
	}
	for _, rec := range records {
		if err := store.StoreSelection(rec); err != nil {
			t.Fatalf("Failed to store selection: %v", err)
		}
	}

	got, err := store.GetSelections(now.Add(-time.Second), now.Add(5*time.Second))
	if err != nil {
		t.Fatalf("Failed to get selections: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 selections, got %d", len(got))
	}
	if got[0].RequestID != "r1" || got[1].RequestID != "r2" {
		t.Errorf("Unexpected order %s, %s", got[0].RequestID, got[1].RequestID)
	}
	if len(got[0].Scores) != 2 || got[0].Scores[1] != 0.4 {
		t.Errorf("Unexpected scores %v", got[0].Scores)
	}

	// End bound is inclusive
	got, err = store.GetSelections(now, now)
	if err != nil {
		t.Fatalf("Failed to get selections: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 selection at exact timestamp, got %d", len(got))
	}
}

func TestGetSelections_EmptyAndInverted(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	got, err := store.GetSelections(now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Failed to get selections: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result, got %d", len(got))
	}

	got, err = store.GetSelections(now, now.Add(-time.Hour))
	if err != nil || got != nil {
		t.Errorf("Expected nil result for inverted range, got %v, %v", got, err)
	}
}

func TestStoreSelection_DefaultsTimestamp(t *testing.T) {
	store := newTestStore(t)
	before := time.Now().Add(-time.Second)

	if err := store.StoreSelection(SelectionRecord{RequestID: "x"}); err != nil {
		t.Fatalf("Failed to store selection: %v", err)
	}

	got, err := store.GetSelections(before, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Failed to get selections: %v", err)
	}
	if len(got) != 1 || got[0].Timestamp.IsZero() {
		t.Errorf("Expected one timestamped selection, got %+v", got)
	}
}

func TestCompareKeys(t *testing.T) {
	testCases := []struct {
		a        []byte
		b        []byte
		expected int
	}{
		{[]byte("00000000000000000123"), []byte("00000000000000000123"), 0},
		{[]byte("00000000000000000123"), []byte("00000000000000000124"), -1},
		{[]byte("00000000000000000124"), []byte("00000000000000000123"), 1},
	}

	for _, tc := range testCases {
		result := compareKeys(tc.a, tc.b)
		if (result < 0 && tc.expected >= 0) || (result > 0 && tc.expected <= 0) || (result == 0 && tc.expected != 0) {
			t.Errorf("compareKeys(%q, %q) = %v, expected %v", tc.a, tc.b, result, tc.expected)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := newTestStore(t)

	done := make(chan bool, 10)

	for i := 0; i < 5; i++ {
		go func(id int) {
			for j := 0; j < 10; j++ {
				store.PutSequence(dataset.Row{ID: fmt.Sprintf("%d-%d", id, j), Sequence: dataset.Sequence{0.5}})
				store.StoreSelection(SelectionRecord{RequestID: fmt.Sprintf("%d-%d", id, j), Timestamp: time.Now()})
			}
			done <- true
		}(i)
	}

	for i := 0; i < 5; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				store.Rows()
				store.GetSelections(time.Now().Add(-time.Minute), time.Now())
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	count, err := store.CountSequences()
	if err != nil {
		t.Fatalf("Failed to count sequences: %v", err)
	}
	if count != 50 {
		t.Errorf("Expected 50 sequences, got %d", count)
	}
}

func BenchmarkStoreSelection(b *testing.B) {
	store, err := New(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	baseTime := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.StoreSelection(SelectionRecord{
			RequestID: "bench",
			Timestamp: baseTime.Add(time.Duration(i) * time.Nanosecond),
			Scores:    []float64{0.1, 0.2},
		})
	}
}
