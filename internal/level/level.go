package level

import "math"

const (
	CurveExponent = 0.25
	CurveGain     = 0.88
	CurveFloor    = 0.12

	// RestingLevel is what a silent meter shows; it equals Perceptual(0).
	RestingLevel = CurveFloor

	DefaultCapacity = 64
	MaxFrameRate    = 30
)

// Perceptual maps a raw RMS amplitude onto a display level in
// [CurveFloor, 1]. The fourth root expands quiet input so speech is visible.
func Perceptual(raw float64) float64 {
	return math.Pow(clamp(raw), CurveExponent)*CurveGain + CurveFloor
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
