package sensor

// LightBand is the coarse daylight category of a light reading.
type LightBand int

const (
	Night LightBand = iota
	Dusk
	Twilight
	Dawn
	Bright
)

func (b LightBand) String() string {
	switch b {
	case Night:
		return "NIGHT"
	case Dusk:
		return "DUSK"
	case Twilight:
		return "TWILIGHT"
	case Dawn:
		return "DAWN"
	case Bright:
		return "BRIGHT"
	default:
		return "UNKNOWN"
	}
}

// ClassifyLight maps a light percentage onto its band. Each band includes
// its lower bound.
func ClassifyLight(percent float64) LightBand {
	switch {
	case percent < 20:
		return Night
	case percent < 40:
		return Dusk
	case percent < 60:
		return Twilight
	case percent < 80:
		return Dawn
	default:
		return Bright
	}
}
