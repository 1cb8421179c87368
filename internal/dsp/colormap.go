package dsp

import "math"

// Gradient is a piecewise-linear colour map over [0, 1] defined by evenly
// spaced stops
type Gradient [][3]float64

// Viridis approximates matplotlib's viridis with nine stops. Its luma rises
// monotonically, so brighter always means more power.
var Viridis = Gradient{
	{68, 1, 84},
	{71, 45, 123},
	{59, 82, 139},
	{44, 114, 142},
	{33, 145, 140},
	{40, 174, 128},
	{94, 201, 98},
	{173, 220, 48},
	{253, 231, 37},
}

// At returns the interpolated colour for t in [0, 1], channels in [0, 255].
// t outside the range, or NaN, is clamped.
func (g Gradient) At(t float64) [3]float64 {
	if !(t > 0) {
		return g[0]
	}
	if t >= 1 {
		return g[len(g)-1]
	}
	pos := t * float64(len(g)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := g[i], g[i+1]
	return [3]float64{
		a[0] + (b[0]-a[0])*frac,
		a[1] + (b[1]-a[1])*frac,
		a[2] + (b[2]-a[2])*frac,
	}
}

// RGB returns the 8-bit colour for t, truncating each channel
func (g Gradient) RGB(t float64) [3]byte {
	c := g.At(t)
	return [3]byte{byte(c[0]), byte(c[1]), byte(c[2])}
}

// Luma is the Rec. 601 brightness of a colour
func Luma(c [3]float64) float64 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

// finiteOr replaces NaN and infinities with fallback
func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
