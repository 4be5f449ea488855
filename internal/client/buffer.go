package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/soil-monitor/internal/models"
)

// ReportBuffer is a bounded FIFO of reports waiting to be sent to the
// gateway. It is safe for concurrent use.
type ReportBuffer struct {
	reports    []*models.Report
	capacity   int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64
	TotalDropped  int64
	HighWaterMark int
	LastPushTime  time.Time
	LastDropTime  time.Time
}

// NewReportBuffer creates a buffer holding at most capacity reports. When
// full it drops the oldest report if dropOldest is set, the incoming one
// otherwise.
func NewReportBuffer(capacity int, dropOldest bool) *ReportBuffer {
	return &ReportBuffer{
		reports:    make([]*models.Report, 0, capacity),
		capacity:   capacity,
		dropOldest: dropOldest,
	}
}

// Push adds a report. It returns false if the report itself was dropped.
func (rb *ReportBuffer) Push(report *models.Report) bool {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	now := time.Now()
	if len(rb.reports) >= rb.capacity {
		rb.stats.TotalDropped++
		rb.stats.LastDropTime = now
		if !rb.dropOldest {
			return false
		}
		rb.reports[0] = nil
		rb.reports = rb.reports[1:]
	}
	rb.reports = append(rb.reports, report)
	rb.stats.TotalPushed++
	rb.stats.LastPushTime = now
	rb.stats.HighWaterMark = max(rb.stats.HighWaterMark, len(rb.reports))
	return true
}

// PopBatch removes and returns up to n reports, oldest first.
func (rb *ReportBuffer) PopBatch(n int) []*models.Report {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	count := min(n, len(rb.reports))
	if count <= 0 {
		return nil
	}
	result := make([]*models.Report, count)
	copy(result, rb.reports[:count])
	rb.reports = rb.reports[count:]
	return result
}

// Requeue puts reports that could not be sent back at the front, keeping
// their order. Reports that no longer fit are dropped from the oldest end.
func (rb *ReportBuffer) Requeue(reports []*models.Report) {
	if len(reports) == 0 {
		return
	}
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	merged := make([]*models.Report, 0, len(reports)+len(rb.reports))
	merged = append(merged, reports...)
	merged = append(merged, rb.reports...)
	if over := len(merged) - rb.capacity; over > 0 {
		merged = merged[over:]
		rb.stats.TotalDropped += int64(over)
		rb.stats.LastDropTime = time.Now()
	}
	rb.reports = merged
	rb.stats.HighWaterMark = max(rb.stats.HighWaterMark, len(rb.reports))
}

// Peek returns up to n reports without removing them
func (rb *ReportBuffer) Peek(n int) []*models.Report {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	count := min(n, len(rb.reports))
	if count <= 0 {
		return nil
	}
	result := make([]*models.Report, count)
	copy(result, rb.reports[:count])
	return result
}

// Size returns the current number of reports in the buffer
func (rb *ReportBuffer) Size() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return len(rb.reports)
}

// IsFull returns true if buffer is at capacity
func (rb *ReportBuffer) IsFull() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return len(rb.reports) >= rb.capacity
}

// IsEmpty returns true if buffer has no reports
func (rb *ReportBuffer) IsEmpty() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return len(rb.reports) == 0
}

// Clear removes all reports and resets the counters.
func (rb *ReportBuffer) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	rb.reports = make([]*models.Report, 0, rb.capacity)
	rb.stats = BufferStats{}
}

// Capacity returns the maximum capacity of the buffer
func (rb *ReportBuffer) Capacity() int {
	return rb.capacity
}

// Stats returns a copy of current buffer statistics
func (rb *ReportBuffer) Stats() BufferStats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.stats
}

func (rb *ReportBuffer) String() string {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	mode := "drop-newest"
	if rb.dropOldest {
		mode = "drop-oldest"
	}
	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		len(rb.reports),
		rb.capacity,
		rb.stats.TotalDropped,
		mode,
	)
}
