package server

import (
	"slices"
	"sync"
	"time"

	"github.com/afroash/soil-monitor/internal/models"
)

// MemoryStore keeps a bounded ring of recent reports per node
type MemoryStore struct {
	capacity     int
	data         map[string][]*models.Report
	mutex        sync.RWMutex
	totalReports int64
}

// StoreStats contains statistics about the memory store
type StoreStats struct {
	TotalReports   int64     `json:"total_reports"`
	UniqueNodes    int       `json:"unique_nodes"`
	CurrentReports int       `json:"current_reports"` // held in memory now
	OldestReport   time.Time `json:"oldest_report,omitempty"`
	NewestReport   time.Time `json:"newest_report,omitempty"`
}

// NewMemoryStore creates a store keeping up to capacity reports per node
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		data:     make(map[string][]*models.Report),
	}
}

// Add stores a copy of the report, evicting the node's oldest report when
// its ring is full.
func (ms *MemoryStore) Add(report *models.Report) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	reports := ms.data[report.NodeID]
	if len(reports) >= ms.capacity {
		reports = reports[1:]
	}
	ms.data[report.NodeID] = append(reports, report.Copy())
	ms.totalReports++
}

// GetLatest returns copies of the n most recent reports of a node, newest first
func (ms *MemoryStore) GetLatest(nodeID string, n int) []*models.Report {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	reports := ms.data[nodeID]
	if len(reports) == 0 || n <= 0 {
		return nil
	}

	start := max(len(reports)-n, 0)
	result := make([]*models.Report, 0, len(reports)-start)
	for i := len(reports) - 1; i >= start; i-- {
		result = append(result, reports[i].Copy())
	}
	return result
}

// GetAll returns copies of every report held, grouped by node in ID order
func (ms *MemoryStore) GetAll() []*models.Report {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	result := make([]*models.Report, 0)
	for _, id := range ms.nodeIDs() {
		for _, r := range ms.data[id] {
			result = append(result, r.Copy())
		}
	}
	return result
}

// GetCurrent returns a copy of the most recent report of a node
func (ms *MemoryStore) GetCurrent(nodeID string) *models.Report {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	reports := ms.data[nodeID]
	if len(reports) == 0 {
		return nil
	}
	return reports[len(reports)-1].Copy()
}

func (ms *MemoryStore) GetNodeIDs() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return ms.nodeIDs()
}

// nodeIDs must be called with the lock held
func (ms *MemoryStore) nodeIDs() []string {
	ids := make([]string, 0, len(ms.data))
	for id := range ms.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats() StoreStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := StoreStats{
		TotalReports: ms.totalReports,
		UniqueNodes:  len(ms.data),
	}
	for _, reports := range ms.data {
		stats.CurrentReports += len(reports)
		for _, r := range reports {
			if stats.OldestReport.IsZero() || r.Timestamp.Before(stats.OldestReport) {
				stats.OldestReport = r.Timestamp
			}
			if r.Timestamp.After(stats.NewestReport) {
				stats.NewestReport = r.Timestamp
			}
		}
	}
	return stats
}

// Clear removes all data from the store
func (ms *MemoryStore) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = make(map[string][]*models.Report)
	ms.totalReports = 0
}
