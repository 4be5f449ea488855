package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
)

// setupTestDB creates a store in a temporary directory
func setupTestDB(t testing.TB) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// createTestReport creates a report with the given values
func createTestReport(nodeID string, seq uint32, temp, light, moisture float64, ts time.Time) *models.Report {
	return &models.Report{
		NodeID:      nodeID,
		Sequence:    seq,
		Timestamp:   ts,
		Temperature: models.SensorReading{RawCode: int(seq) + 1000, Value: temp, Timestamp: ts},
		Light:       models.SensorReading{RawCode: int(seq) + 2000, Value: light, Timestamp: ts},
		Moisture:    models.SensorReading{RawCode: int(seq) + 3000, Value: moisture, Timestamp: ts},
		LightLabel:  "DAWN",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	store := setupTestDB(t)
	if store.db == nil {
		t.Fatal("Expected non-nil database connection")
	}
}

func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent/path/that/cannot/exist/test.db", zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestDB(t)

	for i := 0; i < 2; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("Migration %d failed: %v", i+2, err)
		}
	}
}

func TestInsertReport_RoundTrip(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	report := createTestReport("node-01", 4294967295, 23.5, 64.2, 41.0, now)
	report.Stale = []string{models.SoilTemperature, models.SoilMoisture}

	if err := store.InsertReport(report); err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}

	got, err := store.GetLatestReport("node-01")
	if err != nil {
		t.Fatalf("GetLatestReport failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected report, got nil")
	}

	if got.Sequence != 4294967295 {
		t.Errorf("Sequence = %d, want max uint32", got.Sequence)
	}
	if got.Temperature.Value != 23.5 || got.Light.Value != 64.2 || got.Moisture.Value != 41.0 {
		t.Errorf("values = %v/%v/%v", got.Temperature.Value, got.Light.Value, got.Moisture.Value)
	}
	if got.Light.RawCode != report.Light.RawCode {
		t.Errorf("Light.RawCode = %d, want %d", got.Light.RawCode, report.Light.RawCode)
	}
	if got.LightLabel != "DAWN" {
		t.Errorf("LightLabel = %q, want DAWN", got.LightLabel)
	}
	if !got.IsStale(models.SoilTemperature) || !got.IsStale(models.SoilMoisture) || got.IsStale(models.LightLevel) {
		t.Errorf("Stale = %v", got.Stale)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
	}
}

func TestInsertBatch(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now().UTC()
	reports := make([]*models.Report, 50)
	for i := range reports {
		reports[i] = createTestReport("node-01", uint32(i+1), 20, 50, 40, now.Add(time.Duration(i)*time.Second))
	}

	if err := store.InsertBatch(reports); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if err := store.InsertBatch(nil); err != nil {
		t.Errorf("InsertBatch(nil) failed: %v", err)
	}

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalReports != 50 {
		t.Errorf("TotalReports = %d, want 50", stats.TotalReports)
	}
}

func TestGetReportsInRange(t *testing.T) {
	store := setupTestDB(t)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		store.InsertReport(createTestReport("node-01", uint32(i+1), 20, 50, 40, base.Add(time.Duration(i)*time.Minute)))
		store.InsertReport(createTestReport("node-02", uint32(i+1), 20, 50, 40, base.Add(time.Duration(i)*time.Minute)))
	}

	reports, err := store.GetReportsInRange("node-01", base.Add(2*time.Minute), base.Add(5*time.Minute), 100)
	if err != nil {
		t.Fatalf("GetReportsInRange failed: %v", err)
	}
	if len(reports) != 4 {
		t.Fatalf("got %d reports, want 4", len(reports))
	}
	if reports[0].Sequence != 6 || reports[3].Sequence != 3 {
		t.Errorf("order = %d..%d, want newest first 6..3", reports[0].Sequence, reports[3].Sequence)
	}

	all, err := store.GetReportsInRange("", base, base.Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("GetReportsInRange(all) failed: %v", err)
	}
	if len(all) != 20 {
		t.Errorf("all nodes: got %d reports, want 20", len(all))
	}

	limited, _ := store.GetReportsInRange("", base, base.Add(time.Hour), 3)
	if len(limited) != 3 {
		t.Errorf("limit ignored: got %d", len(limited))
	}
}

func TestGetReportsBeforeAndAfter(t *testing.T) {
	store := setupTestDB(t)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		store.InsertReport(createTestReport("node-01", uint32(i+1), 20, 50, 40, base.Add(time.Duration(i)*time.Minute)))
	}
	pivot := base.Add(5 * time.Minute) // sequence 6

	before, err := store.GetReportsBefore("node-01", pivot, 3)
	if err != nil {
		t.Fatalf("GetReportsBefore failed: %v", err)
	}
	if len(before) != 3 || before[0].Sequence != 5 || before[2].Sequence != 3 {
		t.Errorf("before = %v", seqs(before))
	}

	after, err := store.GetReportsAfter("node-01", pivot, 3)
	if err != nil {
		t.Fatalf("GetReportsAfter failed: %v", err)
	}
	// closest three after the pivot, returned newest first
	if len(after) != 3 || after[0].Sequence != 9 || after[2].Sequence != 7 {
		t.Errorf("after = %v", seqs(after))
	}
}

func seqs(reports []*models.Report) []uint32 {
	out := make([]uint32, len(reports))
	for i, r := range reports {
		out[i] = r.Sequence
	}
	return out
}

func TestGetLatestReport_NoReports(t *testing.T) {
	store := setupTestDB(t)

	report, err := store.GetLatestReport("missing")
	if err != nil {
		t.Fatalf("GetLatestReport failed: %v", err)
	}
	if report != nil {
		t.Errorf("Expected nil for unknown node, got %+v", report)
	}
}

func TestGetDailyStats(t *testing.T) {
	store := setupTestDB(t)

	day1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	store.InsertReport(createTestReport("node-01", 1, 10, 20, 30, day1))
	store.InsertReport(createTestReport("node-01", 2, 20, 40, 50, day1.Add(4*time.Hour)))
	store.InsertReport(createTestReport("node-01", 3, 15, 90, 35, day2))
	store.InsertReport(createTestReport("node-02", 1, 0, 0, 0, day2))

	stats, err := store.GetDailyStats("node-01", day1.Add(-time.Hour), day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d days, want 2", len(stats))
	}

	// newest day first
	if !stats[0].Date.Equal(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)) || stats[0].ReportCount != 1 {
		t.Errorf("day 2 = %+v", stats[0])
	}
	d1 := stats[1]
	if d1.ReportCount != 2 {
		t.Errorf("day 1 ReportCount = %d, want 2", d1.ReportCount)
	}
	if d1.Temperature.Min != 10 || d1.Temperature.Max != 20 || d1.Temperature.Avg != 15 {
		t.Errorf("day 1 temperature = %+v", d1.Temperature)
	}
	if d1.Light.Avg != 30 || d1.Moisture.Max != 50 {
		t.Errorf("day 1 light/moisture = %+v / %+v", d1.Light, d1.Moisture)
	}

	all, err := store.GetDailyStats("", day1.Add(-time.Hour), day2.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetDailyStats(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all nodes: got %d rows, want 3", len(all))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		store.InsertReport(createTestReport("node-01", uint32(i), 20, 50, 40, now.AddDate(0, 0, -40).Add(time.Duration(i)*time.Hour)))
		store.InsertReport(createTestReport("node-01", uint32(i+10), 20, 50, 40, now.Add(-time.Duration(i)*time.Hour)))
	}

	deleted, err := store.DeleteOlderThan(30)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted = %d, want 5", deleted)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalReports != 5 {
		t.Errorf("TotalReports = %d, want 5", stats.TotalReports)
	}
}

func TestGetStorageStats(t *testing.T) {
	store := setupTestDB(t)

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats on empty db failed: %v", err)
	}
	if stats.TotalReports != 0 || stats.UniqueNodes != 0 {
		t.Errorf("empty stats = %+v", stats)
	}

	oldest := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newest := oldest.Add(48 * time.Hour)
	store.InsertReport(createTestReport("node-01", 1, 20, 50, 40, oldest))
	store.InsertReport(createTestReport("node-02", 1, 20, 50, 40, newest))

	stats, err = store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalReports != 2 || stats.UniqueNodes != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.OldestReport.Equal(oldest) || !stats.NewestReport.Equal(newest) {
		t.Errorf("range = %v..%v", stats.OldestReport, stats.NewestReport)
	}
	if stats.DatabaseSizeMB <= 0 {
		t.Error("DatabaseSizeMB should be positive")
	}
}

func TestGetNodeIDs(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now().UTC()
	for _, id := range []string{"node-b", "node-a", "node-b", "node-c"} {
		store.InsertReport(createTestReport(id, 1, 20, 50, 40, now))
	}

	ids, err := store.GetNodeIDs()
	if err != nil {
		t.Fatalf("GetNodeIDs failed: %v", err)
	}
	want := []string{"node-a", "node-b", "node-c"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
		}
	}
}

func TestConcurrentInsertsAndReads(t *testing.T) {
	store := setupTestDB(t)

	var wg sync.WaitGroup
	now := time.Now().UTC()
	for w := 0; w < 5; w++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := store.InsertReport(createTestReport("node-01", uint32(id*100+i), 20, 50, 40, now)); err != nil {
					t.Errorf("insert failed: %v", err)
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := store.GetLatestReport("node-01"); err != nil {
					t.Errorf("read failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	stats, _ := store.GetStorageStats()
	if stats.TotalReports != 100 {
		t.Errorf("TotalReports = %d, want 100", stats.TotalReports)
	}
}

func TestClose(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "close.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.InsertReport(createTestReport("node-01", 1, 20, 50, 40, time.Now())); err == nil {
		t.Error("insert after Close should fail")
	}
}

func BenchmarkInsertBatch(b *testing.B) {
	store := setupTestDB(b)
	now := time.Now().UTC()
	reports := make([]*models.Report, 100)
	for i := range reports {
		reports[i] = createTestReport("node-01", uint32(i), 20, 50, 40, now)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.InsertBatch(reports)
	}
}
