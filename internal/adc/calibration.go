package adc

import "math"

// Scheme names the source of a calibration.
type Scheme int

const (
	// SchemeUncalibrated maps codes as a plain proportion of the reference voltage.
	SchemeUncalibrated Scheme = iota
	// SchemeTwoPoint fits a line through two factory-measured points.
	SchemeTwoPoint
	// SchemeVref corrects the nominal mapping with a measured reference voltage.
	SchemeVref
)

func (s Scheme) String() string {
	switch s {
	case SchemeTwoPoint:
		return "two-point"
	case SchemeVref:
		return "vref"
	default:
		return "uncalibrated"
	}
}

// Point is one measured (code, millivolts) pair.
type Point struct {
	Code       int
	MilliVolts float64
}

// Characteristics is the vendor calibration data of a converter.
type Characteristics struct {
	Scheme Scheme

	// Two-point scheme.
	Low  Point
	High Point

	// Vref scheme: the reference measured at the factory and the nominal
	// value the uncorrected mapping assumes.
	VrefMV        float64
	NominalVrefMV float64
}

// usable reports whether the data describes a non-decreasing mapping.
func (c Characteristics) usable() bool {
	switch c.Scheme {
	case SchemeTwoPoint:
		return c.High.Code > c.Low.Code && c.High.MilliVolts >= c.Low.MilliVolts
	case SchemeVref:
		return c.VrefMV > 0 && c.NominalVrefMV > 0
	default:
		return false
	}
}

// Calibration maps raw codes to millivolts. It is built once and never
// modified, so any number of readers may share one instance.
type Calibration struct {
	scheme      Scheme
	referenceMV int
	attenuation Attenuation
	resolution  Resolution
	table       []uint32
}

// BuildCalibration characterizes the converter for the given settings and
// precomputes the code to millivolt table. When the platform has no usable
// characterization the table holds the uncalibrated estimate
// code/maxCode*referenceMV.
func BuildCalibration(src Characterizer, referenceMV int, atten Attenuation, res Resolution) *Calibration {
	chars, ok := src.Characterize(atten, res)
	if !ok || !chars.usable() {
		chars = Characteristics{Scheme: SchemeUncalibrated}
	}

	maxCode := res.MaxCode()
	table := make([]uint32, maxCode+1)
	for code := range table {
		table[code] = toMilliVolts(chars, code, maxCode, referenceMV)
	}

	return &Calibration{
		scheme:      chars.Scheme,
		referenceMV: referenceMV,
		attenuation: atten,
		resolution:  res,
		table:       table,
	}
}

func toMilliVolts(chars Characteristics, code, maxCode, referenceMV int) uint32 {
	nominal := float64(code) / float64(maxCode) * float64(referenceMV)

	var mv float64
	switch chars.Scheme {
	case SchemeTwoPoint:
		slope := (chars.High.MilliVolts - chars.Low.MilliVolts) / float64(chars.High.Code-chars.Low.Code)
		mv = chars.Low.MilliVolts + slope*float64(code-chars.Low.Code)
	case SchemeVref:
		mv = nominal * chars.VrefMV / chars.NominalVrefMV
	default:
		mv = nominal
	}

	if mv < 0 {
		return 0
	}
	return uint32(math.Round(mv))
}

// MilliVolts converts a raw code. Codes outside the representable range are
// clamped to it first.
func (c *Calibration) MilliVolts(code int) int {
	if code < 0 {
		code = 0
	}
	if code >= len(c.table) {
		code = len(c.table) - 1
	}
	return int(c.table[code])
}

// Scheme returns the source the table was built from.
func (c *Calibration) Scheme() Scheme { return c.scheme }

// Calibrated is false when the uncalibrated fallback is in use.
func (c *Calibration) Calibrated() bool { return c.scheme != SchemeUncalibrated }

// ReferenceMV returns the reference voltage the table was built for.
func (c *Calibration) ReferenceMV() int { return c.referenceMV }

// Attenuation returns the input range the table was built for.
func (c *Calibration) Attenuation() Attenuation { return c.attenuation }

// Resolution returns the conversion width the table was built for.
func (c *Calibration) Resolution() Resolution { return c.resolution }
