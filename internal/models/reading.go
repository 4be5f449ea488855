package models

import (
	"fmt"
	"slices"
	"time"
)

// Valid ranges of the physical values, after clamping.
const (
	TemperatureMin = -10.0
	TemperatureMax = 50.0
	PercentMin     = 0.0
	PercentMax     = 100.0
)

// Sensor names used in reports and on the wire.
const (
	SoilTemperature = "soil_temperature"
	LightLevel      = "light_level"
	SoilMoisture    = "soil_moisture"
)

// SensorReading is the last sample taken by one sensor.
type SensorReading struct {
	RawCode   int       `json:"raw_code"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the result of one sampling round on a node.
type Report struct {
	NodeID      string        `json:"node_id"`
	Sequence    uint32        `json:"sequence"`
	Timestamp   time.Time     `json:"timestamp"`
	Temperature SensorReading `json:"soil_temperature"`
	Light       SensorReading `json:"light_level"`
	Moisture    SensorReading `json:"soil_moisture"`
	LightLabel  string        `json:"light_label"`
	// Stale lists the sensors whose read failed this round; their values
	// are carried over from the previous round.
	Stale []string `json:"stale,omitempty"`
}

// IsValid checks identity, timestamp and that every value lies in its range.
func (r *Report) IsValid() bool {
	if r.NodeID == "" || r.Timestamp.IsZero() || r.LightLabel == "" {
		return false
	}
	if r.Temperature.Value < TemperatureMin || r.Temperature.Value > TemperatureMax {
		return false
	}
	for _, v := range []float64{r.Light.Value, r.Moisture.Value} {
		if v < PercentMin || v > PercentMax {
			return false
		}
	}
	return true
}

// IsStale reports whether the named sensor failed this round.
func (r *Report) IsStale(sensor string) bool {
	return slices.Contains(r.Stale, sensor)
}

// Lines renders the human-readable report block.
func (r *Report) Lines() []string {
	return []string{
		fmt.Sprintf("[READING #%d]", r.Sequence),
		fmt.Sprintf("  [TEMP]     Soil Temperature: %.2f°C (Raw ADC: %d)%s",
			r.Temperature.Value, r.Temperature.RawCode, r.staleMark(SoilTemperature)),
		fmt.Sprintf("  [LIGHT]    Light Level: %.1f%% [%s] (Raw ADC: %d)%s",
			r.Light.Value, r.LightLabel, r.Light.RawCode, r.staleMark(LightLevel)),
		fmt.Sprintf("  [MOISTURE] Soil Moisture: %.1f%% (Raw ADC: %d)%s",
			r.Moisture.Value, r.Moisture.RawCode, r.staleMark(SoilMoisture)),
		"------------------------------",
	}
}

func (r *Report) staleMark(sensor string) string {
	if r.IsStale(sensor) {
		return " [STALE]"
	}
	return ""
}

func (r *Report) String() string {
	return fmt.Sprintf("NodeID: %s, Seq: %d, Timestamp: %s, Temperature: %.2f°C, Light: %.1f%% [%s], Moisture: %.1f%%",
		r.NodeID,
		r.Sequence,
		r.Timestamp.Format(time.RFC3339),
		r.Temperature.Value,
		r.Light.Value,
		r.LightLabel,
		r.Moisture.Value)
}

// Copy returns a deep copy of the Report
func (r *Report) Copy() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.Stale = slices.Clone(r.Stale)
	return &c
}
