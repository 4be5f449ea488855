package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyLight(t *testing.T) {
	tests := []struct {
		percent float64
		want    LightBand
	}{
		{0, Night},
		{19.999, Night},
		{20.0, Dusk},
		{39.999, Dusk},
		{40.0, Twilight},
		{59.999, Twilight},
		{60.0, Dawn},
		{79.999, Dawn},
		{80.0, Bright},
		{100.0, Bright},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, ClassifyLight(tt.percent), "ClassifyLight(%v)", tt.percent)
	}
}

func TestClassifyLight_Total(t *testing.T) {
	prev := ClassifyLight(0)
	for p := 0.0; p <= 100; p += 0.01 {
		b := ClassifyLight(p)
		assert.GreaterOrEqual(t, b, prev, "bands must not go backwards at %v", p)
		assert.NotEqual(t, "UNKNOWN", b.String())
		prev = b
	}
}

func TestLightBand_String(t *testing.T) {
	assert.Equal(t, "NIGHT", Night.String())
	assert.Equal(t, "DUSK", Dusk.String())
	assert.Equal(t, "TWILIGHT", Twilight.String())
	assert.Equal(t, "DAWN", Dawn.String())
	assert.Equal(t, "BRIGHT", Bright.String())
	assert.Equal(t, "UNKNOWN", LightBand(42).String())
}
