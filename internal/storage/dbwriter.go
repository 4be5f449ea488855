package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
)

// BatchInserter persists a batch of reports. *SQLiteStore implements it.
type BatchInserter interface {
	InsertBatch(reports []*models.Report) error
}

// DBWriter queues reports and writes them to the database in batches from
// a single background goroutine, so ingest never waits on disk.
type DBWriter struct {
	store       BatchInserter
	logger      zerolog.Logger
	writeChan   chan *models.Report
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	totalDropped  int64
	lastWriteTime time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // reports per write
	FlushPeriod time.Duration // max time a queued report waits
	ChannelSize int           // queue capacity
}

// DefaultDBWriterConfig returns the gateway defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDropped  int64     `json:"total_dropped"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates a writer and starts its background goroutine
func NewDBWriter(store BatchInserter, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger.With().Str("component", "dbwriter").Logger(),
		writeChan:   make(chan *models.Report, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	w.logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")
	return w
}

// Write queues a report. It returns false if the queue is full or the
// writer has been stopped.
func (w *DBWriter) Write(report *models.Report) bool {
	select {
	case <-w.stopChan:
		return false
	default:
	}

	select {
	case w.writeChan <- report:
		return true
	default:
		w.mu.Lock()
		w.totalDropped++
		w.mu.Unlock()
		w.logger.Warn().Str("node_id", report.NodeID).Uint32("sequence", report.Sequence).Msg("DBWriter queue full, dropping report")
		return false
	}
}

func (w *DBWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]*models.Report, 0, w.batchSize)
	flush := func() {
		if len(batch) > 0 {
			w.flush(batch)
			batch = make([]*models.Report, 0, w.batchSize)
		}
	}

	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case report := <-w.writeChan:
			batch = append(batch, report)
			if len(batch) >= w.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-w.stopChan:
		drain:
			for {
				select {
				case report := <-w.writeChan:
					batch = append(batch, report)
					if len(batch) >= w.batchSize {
						flush()
					}
				default:
					break drain
				}
			}
			flush()
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

func (w *DBWriter) flush(batch []*models.Report) {
	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write batch")
		return
	}
	w.totalWritten += int64(len(batch))
	w.totalBatches++
	w.lastWriteTime = time.Now()
	w.logger.Debug().Int("count", len(batch)).Msg("Flushed batch")
}

// Stop flushes everything queued and stops the writer
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		TotalDropped:  w.totalDropped,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
