package adc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		ch      Channel
		res     Resolution
		atten   Attenuation
		wantErr error
	}{
		{"valid", 3, Width12Bit, Atten11dB, nil},
		{"lowest channel", 0, Width9Bit, Atten0dB, nil},
		{"negative channel", -1, Width12Bit, Atten11dB, ErrInvalidChannel},
		{"channel past unit", 8, Width12Bit, Atten11dB, ErrInvalidChannel},
		{"unsupported width", 0, Resolution(16), Atten11dB, ErrInvalidResolution},
		{"unknown attenuation", 0, Width12Bit, Attenuation(9), ErrInvalidAttenuation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulated(SimConfig{})
			err := Configure(sim, tt.ch, tt.res, tt.atten)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigure_Idempotent(t *testing.T) {
	sim := NewSimulated(SimConfig{Levels: map[Channel]int{6: 1000}})

	require.NoError(t, Configure(sim, 6, Width12Bit, Atten11dB))
	require.NoError(t, Configure(sim, 6, Width12Bit, Atten11dB))

	code, err := sim.ReadRaw(6)
	require.NoError(t, err)
	assert.Equal(t, 1000, code)
}

func TestSimulated_ReadRaw(t *testing.T) {
	sim := NewSimulated(SimConfig{
		Levels: map[Channel]int{0: 2000, 3: 4095, 6: 0},
		Noise:  50,
		Seed:   42,
	})

	_, err := sim.ReadRaw(0)
	assert.ErrorIs(t, err, ErrNotConfigured)

	for _, ch := range []Channel{0, 3, 6} {
		require.NoError(t, Configure(sim, ch, Width12Bit, Atten11dB))
	}

	for i := 0; i < 200; i++ {
		code, err := sim.ReadRaw(0)
		require.NoError(t, err)
		assert.InDelta(t, 2000, code, 50)

		code, err = sim.ReadRaw(3)
		require.NoError(t, err)
		assert.LessOrEqual(t, code, 4095)

		code, err = sim.ReadRaw(6)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, code, 0)
	}
}

func TestSimulated_NarrowResolution(t *testing.T) {
	sim := NewSimulated(SimConfig{Levels: map[Channel]int{0: 4095}})
	require.NoError(t, Configure(sim, 0, Width10Bit, Atten11dB))

	code, err := sim.ReadRaw(0)
	require.NoError(t, err)
	assert.Equal(t, 1023, code)
}

func TestSimulated_Fault(t *testing.T) {
	sim := NewSimulated(SimConfig{Levels: map[Channel]int{3: 100}})
	require.NoError(t, Configure(sim, 3, Width12Bit, Atten11dB))

	boom := errors.New("conversion timeout")
	sim.SetFault(3, boom)
	_, err := sim.ReadRaw(3)
	assert.ErrorIs(t, err, boom)

	sim.SetFault(3, nil)
	code, err := sim.ReadRaw(3)
	require.NoError(t, err)
	assert.Equal(t, 100, code)
}

func TestSimulated_Characterize(t *testing.T) {
	_, ok := NewSimulated(SimConfig{}).Characterize(Atten11dB, Width12Bit)
	assert.False(t, ok)

	chars, ok := NewSimulated(DefaultSimConfig()).Characterize(Atten11dB, Width12Bit)
	require.True(t, ok)
	assert.Equal(t, SchemeVref, chars.Scheme)
}
