package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
)

// Store defines the interface for report storage
type Store interface {
	Close() error
	Migrate() error
	InsertReport(report *models.Report) error
	InsertBatch(reports []*models.Report) error
	GetReportsInRange(nodeID string, start, end time.Time, limit int) ([]*models.Report, error)
	GetReportsBefore(nodeID string, before time.Time, limit int) ([]*models.Report, error)
	GetReportsAfter(nodeID string, after time.Time, limit int) ([]*models.Report, error)
	GetLatestReport(nodeID string) (*models.Report, error)
	GetDailyStats(nodeID string, start, end time.Time) ([]DailyStat, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
	GetNodeIDs() ([]string, error)
}

var _ Store = (*SQLiteStore)(nil)

// timestamps are stored as UTC text in this layout so they sort lexically
const timeLayout = "2006-01-02 15:04:05.000"

const reportColumns = `node_id, sequence,
	temperature, temperature_raw,
	light, light_raw,
	moisture, moisture_raw,
	light_label, stale, recorded_at`

// SQLiteStore handles persistent storage of node reports
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Range is the min/max/avg of one value over a day.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// DailyStat represents aggregated statistics for one node and day
type DailyStat struct {
	Date        time.Time `json:"date"`
	NodeID      string    `json:"node_id"`
	Temperature Range     `json:"soil_temperature"`
	Light       Range     `json:"light_level"`
	Moisture    Range     `json:"soil_moisture"`
	ReportCount int       `json:"report_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalReports   int64     `json:"total_reports"`
	OldestReport   time.Time `json:"oldest_report,omitempty"`
	NewestReport   time.Time `json:"newest_report,omitempty"`
	UniqueNodes    int       `json:"unique_nodes"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore opens (and migrates) the database at dbPath
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		temperature REAL NOT NULL,
		temperature_raw INTEGER NOT NULL,
		light REAL NOT NULL,
		light_raw INTEGER NOT NULL,
		moisture REAL NOT NULL,
		moisture_raw INTEGER NOT NULL,
		light_label TEXT NOT NULL,
		stale TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reports_node_time ON reports(node_id, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_reports_time ON reports(recorded_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

func reportArgs(r *models.Report) []any {
	return []any{
		r.NodeID,
		int64(r.Sequence),
		r.Temperature.Value, r.Temperature.RawCode,
		r.Light.Value, r.Light.RawCode,
		r.Moisture.Value, r.Moisture.RawCode,
		r.LightLabel,
		strings.Join(r.Stale, ","),
		formatTime(r.Timestamp),
	}
}

const insertQuery = `INSERT INTO reports (` + reportColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertReport inserts a single report
func (s *SQLiteStore) InsertReport(report *models.Report) error {
	if _, err := s.db.Exec(insertQuery, reportArgs(report)...); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple reports in a single transaction
func (s *SQLiteStore) InsertBatch(reports []*models.Report) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, report := range reports {
		if _, err := stmt.Exec(reportArgs(report)...); err != nil {
			return fmt.Errorf("failed to insert report in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(reports)).Msg("Batch insert completed")
	return nil
}

// where builds a WHERE clause from cond, restricted to nodeID when it is
// not empty.
func where(nodeID, cond string, args ...any) (string, []any) {
	if nodeID == "" {
		return "WHERE " + cond, args
	}
	return "WHERE node_id = ? AND " + cond, append([]any{nodeID}, args...)
}

func (s *SQLiteStore) queryReports(clause, order string, args []any, limit int) ([]*models.Report, error) {
	query := fmt.Sprintf("SELECT %s FROM reports %s ORDER BY recorded_at %s, id %s LIMIT ?",
		reportColumns, clause, order, order)

	rows, err := s.db.Query(query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return reports, nil
}

// GetReportsInRange returns reports within [start, end], newest first. An
// empty nodeID matches every node.
func (s *SQLiteStore) GetReportsInRange(nodeID string, start, end time.Time, limit int) ([]*models.Report, error) {
	clause, args := where(nodeID, "recorded_at BETWEEN ? AND ?", formatTime(start), formatTime(end))
	return s.queryReports(clause, "DESC", args, limit)
}

// GetReportsBefore returns reports before a timestamp, newest first
func (s *SQLiteStore) GetReportsBefore(nodeID string, before time.Time, limit int) ([]*models.Report, error) {
	clause, args := where(nodeID, "recorded_at < ?", formatTime(before))
	return s.queryReports(clause, "DESC", args, limit)
}

// GetReportsAfter returns the reports closest after a timestamp, newest first
func (s *SQLiteStore) GetReportsAfter(nodeID string, after time.Time, limit int) ([]*models.Report, error) {
	clause, args := where(nodeID, "recorded_at > ?", formatTime(after))
	reports, err := s.queryReports(clause, "ASC", args, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(reports)
	return reports, nil
}

// GetLatestReport returns the most recent report of a node, or nil if the
// node has none.
func (s *SQLiteStore) GetLatestReport(nodeID string) (*models.Report, error) {
	row := s.db.QueryRow(
		"SELECT "+reportColumns+" FROM reports WHERE node_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1",
		nodeID,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}
	return r, nil
}

// GetDailyStats returns per-node, per-day aggregates, newest day first
func (s *SQLiteStore) GetDailyStats(nodeID string, start, end time.Time) ([]DailyStat, error) {
	clause, args := where(nodeID, "recorded_at BETWEEN ? AND ?", formatTime(start), formatTime(end))
	query := `
		SELECT
			date(recorded_at) AS day,
			node_id,
			MIN(temperature), MAX(temperature), AVG(temperature),
			MIN(light), MAX(light), AVG(light),
			MIN(moisture), MAX(moisture), AVG(moisture),
			COUNT(*)
		FROM reports ` + clause + `
		GROUP BY day, node_id
		ORDER BY day DESC, node_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var day string
		err := rows.Scan(
			&day,
			&stat.NodeID,
			&stat.Temperature.Min, &stat.Temperature.Max, &stat.Temperature.Avg,
			&stat.Light.Min, &stat.Light.Max, &stat.Light.Avg,
			&stat.Moisture.Min, &stat.Moisture.Max, &stat.Moisture.Avg,
			&stat.ReportCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		if stat.Date, err = time.Parse("2006-01-02", day); err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return stats, nil
}

// DeleteOlderThan removes reports recorded more than days days ago
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec("DELETE FROM reports WHERE recorded_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old reports")
	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM reports").Scan(&stats.TotalReports); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if stats.TotalReports == 0 {
		return stats, nil
	}

	var oldest, newest string
	err := s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at), COUNT(DISTINCT node_id) FROM reports").
		Scan(&oldest, &newest, &stats.UniqueNodes)
	if err != nil {
		return nil, fmt.Errorf("failed to get report range: %w", err)
	}
	stats.OldestReport, _ = parseTimestamp(oldest)
	stats.NewestReport, _ = parseTimestamp(newest)

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// GetNodeIDs returns all node IDs with stored reports, sorted
func (s *SQLiteStore) GetNodeIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT node_id FROM reports ORDER BY node_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query node IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}

// scanReport reads one row selected with reportColumns. Sensor readings get
// the report's timestamp; per-sensor sample times are not stored.
func scanReport(row interface{ Scan(...any) error }) (*models.Report, error) {
	var r models.Report
	var seq int64
	var stale, recordedAt string

	err := row.Scan(
		&r.NodeID, &seq,
		&r.Temperature.Value, &r.Temperature.RawCode,
		&r.Light.Value, &r.Light.RawCode,
		&r.Moisture.Value, &r.Moisture.RawCode,
		&r.LightLabel, &stale, &recordedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Sequence = uint32(seq)
	if stale != "" {
		r.Stale = strings.Split(stale, ",")
	}
	if r.Timestamp, err = parseTimestamp(recordedAt); err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	r.Temperature.Timestamp = r.Timestamp
	r.Light.Timestamp = r.Timestamp
	r.Moisture.Timestamp = r.Timestamp
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTimestamp accepts the stored layout and the formats SQLite itself
// produces.
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
