package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"nia-backend/internal/models"
)

// Waveform raster geometry
const (
	WaveformHeight     = 140
	WaveformWidth      = 410
	WaveformDecimation = 8
	WaveformCutoff     = 30  // bins kept at each end of the spectrum
	WaveformOffset     = 102 // first decimated sample shown
)

var (
	WaveformBackground = [3]byte{0, 0, 51}
	WaveformTrace      = [3]byte{0, 204, 255}
)

// Waveform renders a low-passed trace of the snapshot into a
// WaveformHeight x WaveformWidth RGB raster, row-major. Every 8th sample is
// kept, the FFT is truncated to the lowest WaveformCutoff bins on each side
// and transformed back. Columns whose scaled value is not finite or falls
// outside the raster stay background.
func Waveform(snapshot []uint32) []byte {
	raster := newRaster(WaveformHeight, WaveformWidth, WaveformBackground)

	n := (len(snapshot) + WaveformDecimation - 1) / WaveformDecimation
	if n <= WaveformOffset {
		return raster
	}

	seq := make([]complex128, n)
	for i := range seq {
		seq[i] = complex(float64(snapshot[i*WaveformDecimation]), 0)
	}

	fft := fourier.NewCmplxFFT(n)
	coeff := fft.Coefficients(nil, seq)
	for i := WaveformCutoff; i < n-WaveformCutoff; i++ {
		coeff[i] = 0
	}
	rec := fft.Sequence(nil, coeff)

	data := make([]float64, n)
	for i, c := range rec {
		data[i] = real(c) / float64(n)
	}

	// Headroom so the extremes do not clip
	xMax := floats.Max(data) * 1.1
	xMin := floats.Min(data) * 0.9
	span := xMax - xMin

	for col := 0; col < WaveformWidth; col++ {
		idx := col + WaveformOffset
		if idx >= n {
			break
		}
		v := WaveformHeight * (data[idx] - xMin) / span
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		row := int(v)
		if row < 0 || row >= WaveformHeight {
			continue
		}
		setPixel(raster, WaveformWidth, row, col, WaveformTrace)
	}
	return raster
}

// Finger history geometry
const (
	HistoryRows  = 140
	HistoryCols  = 160
	SpectrumLow  = 4  // first FFT bin kept
	SpectrumHigh = 44 // one past the last FFT bin kept
	pointerRows  = 4
	spectrumRow  = 5
	replicate    = HistoryCols / (SpectrumHigh - SpectrumLow)
)

// FingerBounds splits the normalized spectrum into the six finger ranges
var FingerBounds = [models.FingerCount + 1]int{6, 9, 12, 15, 20, 25, 30}

// FingerTracker turns successive buffer snapshots into finger energies and
// a scrolling single-channel history raster. It is not safe for concurrent
// use; the processing loop owns it.
type FingerTracker struct {
	history []byte
	n       int
	fft     *fourier.FFT
	window  []float64
}

// NewFingerTracker creates a tracker with an empty history
func NewFingerTracker() *FingerTracker {
	return &FingerTracker{history: make([]byte, HistoryRows*HistoryCols)}
}

// Update windows the snapshot with a Hann taper, takes the FFT magnitude of
// bins [SpectrumLow, SpectrumHigh), scales it to [0, 255], scrolls the
// history and sums the finger ranges. Snapshots too short to reach
// SpectrumHigh leave the history untouched and yield zero energies.
func (t *FingerTracker) Update(snapshot []uint32) ([]byte, models.FingerEnergies) {
	var fingers models.FingerEnergies

	n := len(snapshot)
	if n/2+1 < SpectrumHigh {
		return t.History(), fingers
	}
	if n != t.n {
		t.n = n
		t.fft = fourier.NewFFT(n)
		t.window = window.Hann(n)
	}

	x := make([]float64, n)
	for i, s := range snapshot {
		x[i] = float64(s) * t.window[i]
	}
	coeff := t.fft.Coefficients(nil, x)

	spec := make([]float64, SpectrumHigh-SpectrumLow)
	for i := range spec {
		spec[i] = cmplx.Abs(coeff[SpectrumLow+i])
	}
	NormalizeRange(spec, 255)

	// Scroll down one row, then draw pointer and spectrum rows
	copy(t.history[HistoryCols:], t.history[:(HistoryRows-1)*HistoryCols])

	peak := floats.MaxIdx(spec)
	for r := 0; r < pointerRows; r++ {
		row := t.history[r*HistoryCols : (r+1)*HistoryCols]
		for c := range row {
			row[c] = 0
		}
		for c := peak * replicate; c < peak*replicate+replicate; c++ {
			row[c] = 255
		}
	}
	row := t.history[spectrumRow*HistoryCols : (spectrumRow+1)*HistoryCols]
	for i, v := range spec {
		for k := 0; k < replicate; k++ {
			row[i*replicate+k] = byte(v)
		}
	}

	for i := 0; i < models.FingerCount; i++ {
		sum := floats.Sum(spec[FingerBounds[i]:FingerBounds[i+1]]) / 100
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			sum = 0
		}
		fingers[i] = sum
	}
	return t.History(), fingers
}

// History returns a copy of the HistoryRows x HistoryCols raster
func (t *FingerTracker) History() []byte {
	out := make([]byte, len(t.history))
	copy(out, t.history)
	return out
}

// NormalizeRange rescales v in place to [0, scale] by min-max. A flat or
// non-finite range maps every value to 0.
func NormalizeRange(v []float64, scale float64) {
	if len(v) == 0 {
		return
	}
	lo, hi := floats.Min(v), floats.Max(v)
	span := hi - lo
	if !(span > 0) || math.IsInf(span, 0) {
		for i := range v {
			v[i] = 0
		}
		return
	}
	for i := range v {
		x := scale * (v[i] - lo) / span
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
		}
		v[i] = x
	}
}

func newRaster(rows, cols int, fill [3]byte) []byte {
	raster := make([]byte, rows*cols*3)
	for i := 0; i < len(raster); i += 3 {
		raster[i], raster[i+1], raster[i+2] = fill[0], fill[1], fill[2]
	}
	return raster
}

func setPixel(raster []byte, cols, row, col int, c [3]byte) {
	off := (row*cols + col) * 3
	raster[off], raster[off+1], raster[off+2] = c[0], c[1], c[2]
}

// GrayToRGB expands a single-channel raster to RGB triplets
func GrayToRGB(gray []byte) []byte {
	out := make([]byte, len(gray)*3)
	for i, v := range gray {
		out[3*i], out[3*i+1], out[3*i+2] = v, v, v
	}
	return out
}
