package adc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

// IIOPin is one voltage channel of a Linux Industrial I/O converter, read
// through sysfs. It implements analog.PinADC.
type IIOPin struct {
	dir   string
	index int
	bits  int
}

var _ analog.PinADC = (*IIOPin)(nil)

// NewIIOPin returns channel index of the IIO device at dir (for example
// /sys/bus/iio/devices/iio:device0). bits is the converter's sample width.
func NewIIOPin(dir string, index, bits int) *IIOPin {
	return &IIOPin{dir: dir, index: index, bits: bits}
}

// NewIIOPeripherals wires the given channels of one IIO device.
func NewIIOPeripherals(dir string, bits int, channels ...Channel) *PinPeripherals {
	pins := make(map[Channel]analog.PinADC, len(channels))
	for _, ch := range channels {
		pins[ch] = NewIIOPin(dir, int(ch), bits)
	}
	return NewPinPeripherals(pins)
}

func (p *IIOPin) String() string { return filepath.Base(p.dir) + "/" + p.Name() }

// Halt implements conn.Resource. Sysfs reads hold no state.
func (p *IIOPin) Halt() error { return nil }

func (p *IIOPin) Name() string { return fmt.Sprintf("in_voltage%d", p.index) }

func (p *IIOPin) Number() int { return p.index }

func (p *IIOPin) Function() string { return "ADC" }

// Range implements analog.PinADC. The upper voltage is unknown (zero) when
// the device exposes no scale attribute.
func (p *IIOPin) Range() (analog.Sample, analog.Sample) {
	maxRaw := int32(1)<<uint(p.bits) - 1
	max := analog.Sample{Raw: maxRaw}
	if scale, err := p.scale(); err == nil {
		max.V = toPotential(float64(maxRaw) * scale)
	}
	return analog.Sample{}, max
}

// Read implements analog.PinADC.
func (p *IIOPin) Read() (analog.Sample, error) {
	raw, err := p.readInt(p.Name() + "_raw")
	if err != nil {
		return analog.Sample{}, err
	}
	s := analog.Sample{Raw: int32(raw)}
	if scale, err := p.scale(); err == nil {
		s.V = toPotential(float64(raw) * scale)
	}
	return s, nil
}

// scale returns millivolts per code, preferring the per-channel attribute.
func (p *IIOPin) scale() (float64, error) {
	for _, name := range []string{p.Name() + "_scale", "in_voltage_scale"} {
		b, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			continue
		}
		return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	}
	return 0, fmt.Errorf("%s: no scale attribute", p)
}

func (p *IIOPin) readInt(name string) (int64, error) {
	b, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func toPotential(mv float64) physic.ElectricPotential {
	return physic.ElectricPotential(mv * float64(physic.MilliVolt))
}
