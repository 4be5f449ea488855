// Package sensor turns calibrated converter readings into physical values.
//
// The three sensors of a node share one algorithm. A Channel describes what
// differs between them: the converter input they are wired to and the linear
// transform from millivolts to their unit.
package sensor

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/afroash/soil-monitor/internal/adc"
	"github.com/afroash/soil-monitor/internal/models"
)

var (
	// ErrReadFailed wraps every failed sample. The previous value stays valid.
	ErrReadFailed = errors.New("sensor read failed")
	// ErrCodeOutOfRange is returned when the converter yields a code the
	// configured resolution cannot represent.
	ErrCodeOutOfRange = errors.New("raw code out of range")
)

// ReferenceMV is the full-scale voltage the sensor transforms assume.
const ReferenceMV = 3300.0

// Transform maps millivolts linearly onto a physical range:
// Offset + mv/ReferenceMV*Scale, clamped to [Min, Max].
type Transform struct {
	Offset      float64
	Scale       float64
	ReferenceMV float64
	Min         float64
	Max         float64
}

// Apply converts mv and clamps the result.
func (t Transform) Apply(mv float64) float64 {
	return Clamp(t.Offset+mv/t.ReferenceMV*t.Scale, t.Min, t.Max)
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Channel describes one sensor.
type Channel struct {
	Name      string
	Unit      string
	ADC       adc.Channel
	Transform Transform
}

// Sensors of a node. 0 V reads as -10 °C and 3.3 V as 40 °C; the 50 °C
// ceiling is never reached through the transform.
var (
	TemperatureChannel = Channel{
		Name: models.SoilTemperature,
		Unit: "°C",
		ADC:  0, // GPIO36
		Transform: Transform{
			Offset: -10, Scale: 50, ReferenceMV: ReferenceMV,
			Min: models.TemperatureMin, Max: models.TemperatureMax,
		},
	}
	LightChannel = Channel{
		Name: models.LightLevel,
		Unit: "%",
		ADC:  3, // GPIO39
		Transform: Transform{
			Offset: 0, Scale: 100, ReferenceMV: ReferenceMV,
			Min: models.PercentMin, Max: models.PercentMax,
		},
	}
	MoistureChannel = Channel{
		Name: models.SoilMoisture,
		Unit: "%",
		ADC:  6, // GPIO34
		Transform: Transform{
			Offset: 0, Scale: 100, ReferenceMV: ReferenceMV,
			Min: models.PercentMin, Max: models.PercentMax,
		},
	}
)

// Channels returns the node's sensors in report order.
func Channels() []Channel {
	return []Channel{TemperatureChannel, LightChannel, MoistureChannel}
}

// Sensor samples one channel and keeps its last reading.
type Sensor struct {
	channel Channel
	hw      adc.Peripherals
	cal     *adc.Calibration
	clock   clock.Clock
	last    models.SensorReading
}

// New creates a sensor. cal is shared with the node's other sensors and is
// only ever read.
func New(ch Channel, hw adc.Peripherals, cal *adc.Calibration, clk clock.Clock) *Sensor {
	return &Sensor{
		channel: ch,
		hw:      hw,
		cal:     cal,
		clock:   clk,
	}
}

// Read samples the channel once and returns the clamped physical value. On
// failure the previous value is returned alongside an error wrapping
// ErrReadFailed, and the stored reading is left as it was.
func (s *Sensor) Read() (float64, error) {
	raw, err := s.hw.ReadRaw(s.channel.ADC)
	if err != nil {
		return s.last.Value, fmt.Errorf("%w: %s: %w", ErrReadFailed, s.channel.Name, err)
	}
	if max := s.cal.Resolution().MaxCode(); raw < 0 || raw > max {
		return s.last.Value, fmt.Errorf("%w: %s: %w: %d not in [0, %d]", ErrReadFailed, s.channel.Name, ErrCodeOutOfRange, raw, max)
	}

	value := s.channel.Transform.Apply(float64(s.cal.MilliVolts(raw)))
	s.last = models.SensorReading{
		RawCode:   raw,
		Value:     value,
		Timestamp: s.clock.Now(),
	}
	return value, nil
}

// Last returns the most recent successful reading.
func (s *Sensor) Last() models.SensorReading {
	return s.last
}

// Channel returns the sensor's description.
func (s *Sensor) Channel() Channel {
	return s.channel
}
