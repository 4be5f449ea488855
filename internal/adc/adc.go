// Package adc models the analog-to-digital converter of a sensor node: channel
// configuration, raw conversions and the calibration that maps raw codes to
// millivolts.
//
// Hardware access goes through the Peripherals handle. The node owns exactly
// one handle and passes it to whoever needs to touch the converter, so tests
// can swap in a fake without global state.
package adc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidChannel     = errors.New("invalid adc channel")
	ErrInvalidResolution  = errors.New("invalid adc resolution")
	ErrInvalidAttenuation = errors.New("invalid adc attenuation")
	ErrNotConfigured      = errors.New("adc channel not configured")
)

// Channel identifies an analog input line of the converter.
type Channel int

// MaxChannel is the highest channel index of the converter unit.
const MaxChannel Channel = 7

// Valid reports whether c names an existing input line.
func (c Channel) Valid() bool {
	return c >= 0 && c <= MaxChannel
}

func (c Channel) String() string {
	return fmt.Sprintf("ADC1_CH%d", int(c))
}

// Resolution is the conversion width in bits.
type Resolution int

const (
	Width9Bit  Resolution = 9
	Width10Bit Resolution = 10
	Width11Bit Resolution = 11
	Width12Bit Resolution = 12
)

// Valid reports whether the converter supports r.
func (r Resolution) Valid() bool {
	return r >= Width9Bit && r <= Width12Bit
}

// MaxCode returns the largest raw code representable at r bits.
func (r Resolution) MaxCode() int {
	return 1<<uint(r) - 1
}

// Attenuation selects the input range of a channel.
type Attenuation int

const (
	Atten0dB Attenuation = iota
	Atten2_5dB
	Atten6dB
	Atten11dB
)

var attenuationNames = map[Attenuation]string{
	Atten0dB:   "0db",
	Atten2_5dB: "2.5db",
	Atten6dB:   "6db",
	Atten11dB:  "11db",
}

// Valid reports whether a is a known attenuation level.
func (a Attenuation) Valid() bool {
	_, ok := attenuationNames[a]
	return ok
}

func (a Attenuation) String() string {
	if name, ok := attenuationNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAttenuation parses names such as "11db" or "2.5dB".
func ParseAttenuation(s string) (Attenuation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range attenuationNames {
		if s == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAttenuation, s)
}

// Characterizer exposes the vendor calibration data of a converter.
type Characterizer interface {
	// Characterize returns the calibration data for the given settings.
	// ok is false when the platform cannot characterize the conversion.
	Characterize(atten Attenuation, res Resolution) (chars Characteristics, ok bool)
}

// Peripherals is the owned handle to the converter hardware.
type Peripherals interface {
	Characterizer

	// Configure sets the resolution and input range of a channel. Applying
	// the same settings twice has no further effect.
	Configure(ch Channel, res Resolution, atten Attenuation) error

	// ReadRaw performs a single conversion on ch and returns the raw code.
	ReadRaw(ch Channel) (int, error)

	// Close releases the hardware.
	Close() error
}
