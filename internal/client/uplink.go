package client

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
)

// BatchSender delivers batches of reports. *Connection implements it.
type BatchSender interface {
	IsConnected() bool
	SendBatch(reports []*models.Report) error
}

// Uplink queues every report in a ReportBuffer and periodically flushes the
// queue to the gateway. Reports survive gateway outages up to the buffer's
// capacity.
type Uplink struct {
	buffer        *ReportBuffer
	sender        BatchSender
	batchSize     int
	flushInterval time.Duration
	clock         clock.Clock
	logger        zerolog.Logger
}

// UplinkConfig holds the flush settings
type UplinkConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// NewUplink creates an uplink draining buffer into sender.
func NewUplink(buffer *ReportBuffer, sender BatchSender, cfg UplinkConfig, clk clock.Clock, logger zerolog.Logger) *Uplink {
	return &Uplink{
		buffer:        buffer,
		sender:        sender,
		batchSize:     max(cfg.BatchSize, 1),
		flushInterval: cfg.FlushInterval,
		clock:         clk,
		logger:        logger.With().Str("component", "uplink").Logger(),
	}
}

// Report queues a copy of r.
func (u *Uplink) Report(r *models.Report) {
	if !u.buffer.Push(r.Copy()) {
		u.logger.Warn().Uint32("reading", r.Sequence).Msg("Report buffer full, dropping report")
	}
}

// Flush sends queued reports while the gateway is reachable and returns how
// many were delivered. A failed batch goes back to the front of the queue.
func (u *Uplink) Flush() int {
	sent := 0
	for u.sender.IsConnected() {
		batch := u.buffer.PopBatch(u.batchSize)
		if len(batch) == 0 {
			break
		}
		if err := u.sender.SendBatch(batch); err != nil {
			u.buffer.Requeue(batch)
			u.logger.Warn().Err(err).Int("pending", u.buffer.Size()).Msg("Batch send failed")
			break
		}
		sent += len(batch)
	}
	if sent > 0 {
		u.logger.Debug().Int("sent", sent).Int("pending", u.buffer.Size()).Msg("Flushed reports")
	}
	return sent
}

// Run flushes every flush interval until ctx is done, then flushes once more.
func (u *Uplink) Run(ctx context.Context) error {
	ticker := u.clock.Ticker(u.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.Flush()
			return ctx.Err()
		case <-ticker.C:
			u.Flush()
		}
	}
}
