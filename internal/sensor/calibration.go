package sensor

// Coefficients is a linear correction: corrected = raw*Slope + Offset.
type Coefficients struct {
	Slope  float64
	Offset float64
}

// Uncalibrated leaves readings unchanged.
var Uncalibrated = Coefficients{Slope: 1}

// Calibration holds per-index coefficients produced offline by two-point
// calibration. Apply it exactly once per raw reading: the map is not
// idempotent.
type Calibration struct {
	coeffs []Coefficients
}

// NewCalibration copies the coefficients, indexed by registry Index.
func NewCalibration(coeffs []Coefficients) *Calibration {
	c := make([]Coefficients, len(coeffs))
	copy(c, coeffs)
	return &Calibration{coeffs: c}
}

// Apply returns the corrected value. An index with no coefficients returns
// raw unchanged (fail-open).
func (c *Calibration) Apply(i Index, raw float64) float64 {
	if c == nil || i < 0 || int(i) >= len(c.coeffs) {
		return raw
	}
	k := c.coeffs[i]
	return raw*k.Slope + k.Offset
}

// Len returns the number of calibrated indexes.
func (c *Calibration) Len() int {
	if c == nil {
		return 0
	}
	return len(c.coeffs)
}
