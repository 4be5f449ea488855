package adc

import "fmt"

// Configure validates the settings and applies them to one channel. Any error
// is a configuration bug: callers are expected to stop rather than retry.
func Configure(p Peripherals, ch Channel, res Resolution, atten Attenuation) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, int(ch))
	}
	if !res.Valid() {
		return fmt.Errorf("%w: %d bits", ErrInvalidResolution, int(res))
	}
	if !atten.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAttenuation, int(atten))
	}
	if err := p.Configure(ch, res, atten); err != nil {
		return fmt.Errorf("configure %s: %w", ch, err)
	}
	return nil
}
