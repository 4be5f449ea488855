package adc

import (
	"math/rand"
	"sync"
)

// SimConfig describes a simulated converter.
type SimConfig struct {
	// Levels holds the mean 12-bit code per channel.
	Levels map[Channel]int
	// Noise is the +/- spread around each level, in 12-bit codes.
	Noise int
	// Seed makes the noise reproducible. Zero picks a fixed default.
	Seed int64
	// Characteristics is returned by Characterize. Nil means the simulated
	// platform has no calibration data.
	Characteristics *Characteristics
}

// DefaultSimConfig returns a converter that idles around mid-range values on
// the three sensor channels and carries a factory Vref calibration.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Levels: map[Channel]int{
			0: 1900, // ~21 °C
			3: 2300, // ~55 %
			6: 1650, // ~40 %
		},
		Noise: 40,
		Characteristics: &Characteristics{
			Scheme:        SchemeVref,
			VrefMV:        1086,
			NominalVrefMV: 1100,
		},
	}
}

type simChannel struct {
	res   Resolution
	atten Attenuation
}

// Simulated is an in-memory converter for development machines.
type Simulated struct {
	mu         sync.Mutex
	rng        *rand.Rand
	levels     map[Channel]int
	noise      int
	faults     map[Channel]error
	configured map[Channel]simChannel
	chars      *Characteristics
}

// NewSimulated creates a simulated converter.
func NewSimulated(cfg SimConfig) *Simulated {
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	levels := make(map[Channel]int, len(cfg.Levels))
	for ch, level := range cfg.Levels {
		levels[ch] = level
	}
	return &Simulated{
		rng:        rand.New(rand.NewSource(seed)),
		levels:     levels,
		noise:      cfg.Noise,
		faults:     make(map[Channel]error),
		configured: make(map[Channel]simChannel),
		chars:      cfg.Characteristics,
	}
}

// Configure implements Peripherals.
func (s *Simulated) Configure(ch Channel, res Resolution, atten Attenuation) error {
	if !ch.Valid() {
		return ErrInvalidChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured[ch] = simChannel{res: res, atten: atten}
	return nil
}

// ReadRaw implements Peripherals.
func (s *Simulated) ReadRaw(ch Channel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configured[ch]
	if !ok {
		return 0, ErrNotConfigured
	}
	if err := s.faults[ch]; err != nil {
		return 0, err
	}

	code := s.levels[ch]
	if s.noise > 0 {
		code += s.rng.Intn(2*s.noise+1) - s.noise
	}
	// Levels are 12-bit; narrower widths drop low bits.
	code >>= uint(Width12Bit - cfg.res)

	if code < 0 {
		code = 0
	}
	if max := cfg.res.MaxCode(); code > max {
		code = max
	}
	return code, nil
}

// Characterize implements Peripherals.
func (s *Simulated) Characterize(atten Attenuation, res Resolution) (Characteristics, bool) {
	if s.chars == nil {
		return Characteristics{}, false
	}
	return *s.chars, true
}

// SetLevel moves the mean 12-bit code of a channel.
func (s *Simulated) SetLevel(ch Channel, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[ch] = code
}

// SetFault makes every read of ch fail with err until cleared with nil.
func (s *Simulated) SetFault(ch Channel, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, ch)
		return
	}
	s.faults[ch] = err
}

// Close implements Peripherals.
func (s *Simulated) Close() error {
	return nil
}
