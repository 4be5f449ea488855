// Package monitor runs the node's sampling loop.
//
// A Monitor owns the converter handle for its lifetime. It configures the
// sensor channels once, then samples all sensors every Interval and hands
// each report to its reporters until the context passed to Run is done.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/adc"
	"github.com/afroash/soil-monitor/internal/models"
	"github.com/afroash/soil-monitor/internal/sensor"
)

// Interval is the fixed period between two sampling rounds.
const Interval = 2000 * time.Millisecond

// State is the lifecycle phase of a Monitor.
type State int

const (
	StateInitializing State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Reporter receives every report produced by the loop. Report is called
// from the loop goroutine and must not block for long; r must not be
// modified.
type Reporter interface {
	Report(r *models.Report)
}

// Config holds the converter settings shared by all channels.
type Config struct {
	NodeID      string
	ReferenceMV int
	Resolution  adc.Resolution
	Attenuation adc.Attenuation
}

// Monitor samples the node's sensors on a fixed cadence.
type Monitor struct {
	cfg       Config
	hw        adc.Peripherals
	clock     clock.Clock
	logger    zerolog.Logger
	reporters []Reporter

	cal     *adc.Calibration
	sensors []*sensor.Sensor
	counter uint32

	state      State
	stateMutex sync.RWMutex
}

// New creates a monitor. Nothing touches the hardware until Init or Run.
func New(cfg Config, hw adc.Peripherals, clk clock.Clock, logger zerolog.Logger, reporters ...Reporter) *Monitor {
	return &Monitor{
		cfg:       cfg,
		hw:        hw,
		clock:     clk,
		logger:    logger,
		reporters: reporters,
		state:     StateInitializing,
	}
}

// State returns the current lifecycle phase.
func (m *Monitor) State() State {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.stateMutex.Lock()
	m.state = s
	m.stateMutex.Unlock()
	m.logger.Info().Str("state", s.String()).Msg("Monitor state updated")
}

// Calibration returns the table built by Init, or nil before that.
func (m *Monitor) Calibration() *adc.Calibration {
	return m.cal
}

// Init configures every channel, builds the calibration and takes one
// discarded warm-up reading per sensor. A configuration error means the
// node is built wrong and is returned unchanged to the caller.
func (m *Monitor) Init() error {
	if m.State() != StateInitializing {
		return nil
	}

	channels := sensor.Channels()
	for _, ch := range channels {
		if err := adc.Configure(m.hw, ch.ADC, m.cfg.Resolution, m.cfg.Attenuation); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		m.logger.Debug().
			Str("sensor", ch.Name).
			Stringer("channel", ch.ADC).
			Msg("Channel configured")
	}

	m.cal = adc.BuildCalibration(m.hw, m.cfg.ReferenceMV, m.cfg.Attenuation, m.cfg.Resolution)
	if m.cal.Calibrated() {
		m.logger.Info().Stringer("scheme", m.cal.Scheme()).Msg("ADC calibration loaded")
	} else {
		m.logger.Warn().
			Int("reference_mv", m.cfg.ReferenceMV).
			Msg("ADC calibration unavailable, using uncalibrated estimate")
	}

	m.sensors = make([]*sensor.Sensor, len(channels))
	for i, ch := range channels {
		m.sensors[i] = sensor.New(ch, m.hw, m.cal, m.clock)
		if _, err := m.sensors[i].Read(); err != nil {
			m.logger.Warn().Err(err).Str("sensor", ch.Name).Msg("Warm-up read failed")
		}
	}

	m.setState(StateRunning)
	return nil
}

// Run initializes the monitor if needed and then samples forever. It
// returns only when ctx is done or Init fails; read faults never stop it.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Init(); err != nil {
		return err
	}

	m.logger.Info().Dur("interval", Interval).Msg("Sampling loop started")
	for {
		m.report(m.cycle())

		select {
		case <-ctx.Done():
			m.logger.Info().Uint32("readings", m.counter).Msg("Sampling loop stopped")
			return ctx.Err()
		case <-m.clock.After(Interval):
		}
	}
}

// cycle takes one sampling round. Sensors that fail keep their previous
// reading and are listed as stale.
func (m *Monitor) cycle() *models.Report {
	m.counter++

	r := &models.Report{
		NodeID:    m.cfg.NodeID,
		Sequence:  m.counter,
		Timestamp: m.clock.Now(),
	}

	readings := make([]models.SensorReading, len(m.sensors))
	for i, s := range m.sensors {
		if _, err := s.Read(); err != nil {
			m.logger.Warn().
				Err(err).
				Str("sensor", s.Channel().Name).
				Uint32("reading", m.counter).
				Msg("Sensor read failed, reporting previous value")
			r.Stale = append(r.Stale, s.Channel().Name)
		}
		readings[i] = s.Last()
	}

	r.Temperature, r.Light, r.Moisture = readings[0], readings[1], readings[2]
	r.LightLabel = sensor.ClassifyLight(r.Light.Value).String()
	return r
}

func (m *Monitor) report(r *models.Report) {
	for _, rep := range m.reporters {
		rep.Report(r)
	}
}

// LogReporter writes the report block to the log, one line per entry.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (l *LogReporter) Report(r *models.Report) {
	for _, line := range r.Lines() {
		l.logger.Info().Msg(line)
	}
}
