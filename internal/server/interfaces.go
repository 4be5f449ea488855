package server

import (
	"time"

	"github.com/afroash/soil-monitor/internal/models"
	"github.com/afroash/soil-monitor/internal/storage"
)

// ReportStore holds the recent reports of every node in memory.
// MemoryStore implements this interface.
type ReportStore interface {
	// Add stores a report under its node ID
	Add(report *models.Report)

	// GetLatest returns the n most recent reports of a node (newest first)
	GetLatest(nodeID string, n int) []*models.Report

	// GetCurrent returns the most recent report of a node
	GetCurrent(nodeID string) *models.Report

	// GetNodeIDs returns the IDs of all nodes that have reported, sorted
	GetNodeIDs() []string

	Stats() StoreStats
	GetAll() []*models.Report
	Clear()
}

// HistoricalStore is the persistent side of the gateway.
// storage.SQLiteStore implements this interface.
type HistoricalStore interface {
	GetReportsInRange(nodeID string, start, end time.Time, limit int) ([]*models.Report, error)
	GetReportsBefore(nodeID string, before time.Time, limit int) ([]*models.Report, error)
	GetLatestReport(nodeID string) (*models.Report, error)
	GetNodeIDs() ([]string, error)
	GetDailyStats(nodeID string, start, end time.Time) ([]storage.DailyStat, error)
	GetStorageStats() (*storage.StorageStats, error)
}

// ReportWriter queues reports for persistence. storage.DBWriter implements it.
type ReportWriter interface {
	Write(report *models.Report) bool
}

var (
	_ ReportStore     = (*MemoryStore)(nil)
	_ HistoricalStore = (*storage.SQLiteStore)(nil)
	_ ReportWriter    = (*storage.DBWriter)(nil)
)
