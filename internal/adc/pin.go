package adc

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"
)

type pinChannel struct {
	pin   analog.PinADC
	res   Resolution
	shift uint
	ready bool
}

// PinPeripherals drives converter channels backed by periph.io analog pins.
// Pins that sample wider than the configured resolution are scaled down.
type PinPeripherals struct {
	mu       sync.Mutex
	channels map[Channel]*pinChannel
}

// NewPinPeripherals maps logical channels onto analog pins.
func NewPinPeripherals(pins map[Channel]analog.PinADC) *PinPeripherals {
	channels := make(map[Channel]*pinChannel, len(pins))
	for ch, pin := range pins {
		channels[ch] = &pinChannel{pin: pin}
	}
	return &PinPeripherals{channels: channels}
}

// Configure implements Peripherals. The pin's input range is fixed by the
// hardware, so the attenuation is only validated.
func (p *PinPeripherals) Configure(ch Channel, res Resolution, atten Attenuation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.channels[ch]
	if !ok {
		return fmt.Errorf("%w: no pin wired to %s", ErrInvalidChannel, ch)
	}

	_, max := c.pin.Range()
	native := bits.Len32(uint32(max.Raw))
	if native < int(res) {
		return fmt.Errorf("%w: pin %s samples %d bits, %d requested", ErrInvalidResolution, c.pin.Name(), native, int(res))
	}

	c.res = res
	c.shift = uint(native - int(res))
	c.ready = true
	return nil
}

// ReadRaw implements Peripherals.
func (p *PinPeripherals) ReadRaw(ch Channel) (int, error) {
	p.mu.Lock()
	c, ok := p.channels[ch]
	if !ok || !c.ready {
		p.mu.Unlock()
		return 0, ErrNotConfigured
	}
	pin, shift := c.pin, c.shift
	p.mu.Unlock()

	sample, err := pin.Read()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", pin.Name(), err)
	}
	if sample.Raw < 0 {
		return 0, nil
	}
	return int(sample.Raw) >> shift, nil
}

// Characterize implements Peripherals. Pins that report the voltage of their
// range endpoints provide a two-point calibration.
func (p *PinPeripherals) Characterize(atten Attenuation, res Resolution) (Characteristics, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.channels {
		min, max := c.pin.Range()
		if max.V <= min.V || max.Raw <= min.Raw {
			continue
		}
		native := bits.Len32(uint32(max.Raw))
		shift := 0
		if native > int(res) {
			shift = native - int(res)
		}
		return Characteristics{
			Scheme: SchemeTwoPoint,
			Low:    Point{Code: int(min.Raw) >> shift, MilliVolts: milliVolts(min.V)},
			High:   Point{Code: int(max.Raw) >> shift, MilliVolts: milliVolts(max.V)},
		}, true
	}
	return Characteristics{}, false
}

// Close halts every pin.
func (p *PinPeripherals) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for _, c := range p.channels {
		errs = errors.Join(errs, c.pin.Halt())
	}
	return errs
}

func milliVolts(v physic.ElectricPotential) float64 {
	return float64(v) / float64(physic.MilliVolt)
}
