package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"nia-backend/internal/models"
)

// Spectrogram segment defaults
const (
	SpectrogramMaxSegment = 128
	spectrogramTukeyAlpha = 0.25
	minPower              = 1e-20
)

// Spectrogram is a one-sided power spectral density per time segment.
// Power is indexed [frequency][segment].
type Spectrogram struct {
	Freqs []float64
	Times []float64
	Power [][]float64
}

// ComputeSpectrogram splits x into Tukey-windowed segments of
// min(len(x), 128) samples overlapping by an eighth, removes each
// segment's mean and returns the density-scaled one-sided periodogram of
// each segment. It returns nil when x has fewer than two samples.
func ComputeSpectrogram(x []float64, fs float64) *Spectrogram {
	nperseg := min(len(x), SpectrogramMaxSegment)
	if nperseg < 2 || !(fs > 0) {
		return nil
	}
	noverlap := nperseg / 8
	step := nperseg - noverlap
	segments := (len(x)-nperseg)/step + 1

	// Periodic window: symmetric of length n+1 without its last point
	win := make([]float64, nperseg+1)
	for i := range win {
		win[i] = 1
	}
	win = window.Tukey{Alpha: spectrogramTukeyAlpha}.Transform(win)[:nperseg]
	scale := 1 / (fs * floats.Dot(win, win))

	nfreq := nperseg/2 + 1
	sg := &Spectrogram{
		Freqs: make([]float64, nfreq),
		Times: make([]float64, segments),
		Power: make([][]float64, nfreq),
	}
	for f := range sg.Freqs {
		sg.Freqs[f] = float64(f) * fs / float64(nperseg)
		sg.Power[f] = make([]float64, segments)
	}

	fft := fourier.NewFFT(nperseg)
	seg := make([]float64, nperseg)
	coeff := make([]complex128, nfreq)
	for s := 0; s < segments; s++ {
		start := s * step
		copy(seg, x[start:start+nperseg])
		mean := floats.Sum(seg) / float64(nperseg)
		for i := range seg {
			seg[i] = (seg[i] - mean) * win[i]
		}
		coeff = fft.Coefficients(coeff, seg)

		for f, c := range coeff {
			p := cmplx.Abs(c)
			p = p * p * scale
			// Every bin but DC (and Nyquist for even lengths) is folded
			if f > 0 && !(nperseg%2 == 0 && f == nfreq-1) {
				p *= 2
			}
			sg.Power[f][s] = p
		}
		sg.Times[s] = (float64(start) + float64(nperseg)/2) / fs
	}
	return sg
}

// LogPower returns 10*log10 of every cell. Cells at or below zero power are
// floored so the result stays finite.
func (sg *Spectrogram) LogPower() [][]float64 {
	if sg == nil {
		return nil
	}
	out := make([][]float64, len(sg.Power))
	for f, row := range sg.Power {
		out[f] = make([]float64, len(row))
		for s, p := range row {
			out[f][s] = 10 * math.Log10(math.Max(p, minPower))
		}
	}
	return out
}

// Frame maps the log power through g, normalized between the global
// minimum and maximum, into a frequency x segment RGB raster. A nil
// spectrogram gives an empty frame.
func (sg *Spectrogram) Frame(g Gradient) models.Frame {
	logp := sg.LogPower()
	height := len(logp)
	width := 0
	if height > 0 {
		width = len(logp[0])
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range logp {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo

	pixels := make([]byte, 0, height*width*3)
	for _, row := range logp {
		for _, v := range row {
			t := finiteOr((v-lo)/span, 0)
			c := g.RGB(t)
			pixels = append(pixels, c[0], c[1], c[2])
		}
	}
	return models.Frame{Kind: "spectrogram", Width: width, Height: height, Pixels: pixels}
}
