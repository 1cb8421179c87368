package dsp

import (
	"fmt"

	"nia-backend/internal/models"
)

// FilterConfigError reports a band whose edges do not fit the sampling
// rate. It is fatal: the bank is never built from an invalid table.
type FilterConfigError struct {
	Band       Band
	SampleRate float64
	Low, High  float64 // edges normalized by Nyquist
}

func (e *FilterConfigError) Error() string {
	return fmt.Sprintf("band %q [%.2f, %.2f) Hz at fs=%.2f Hz: normalized edges (%.4f, %.4f) must satisfy 0 < low < high < 1",
		e.Band.Name, e.Band.Low, e.Band.High, e.SampleRate, e.Low, e.High)
}

// FilterBank holds one band-pass filter per row of a validated band table
type FilterBank struct {
	sampleRate float64
	filters    []*BandPass
}

// NewFilterBank validates every band against the Nyquist frequency of
// sampleRate and designs the filters
func NewFilterBank(table BandTable, sampleRate float64) (*FilterBank, error) {
	if !(sampleRate > 0) {
		return nil, &FilterConfigError{SampleRate: sampleRate}
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("filter bank: empty band table")
	}

	nyquist := sampleRate / 2
	bank := &FilterBank{sampleRate: sampleRate}
	for _, band := range table {
		low := band.Low / nyquist
		high := band.High / nyquist
		if !(low > 0) || !(high < 1) || !(low < high) {
			return nil, &FilterConfigError{Band: band, SampleRate: sampleRate, Low: low, High: high}
		}

		f, err := newBandPass(band, sampleRate, low, high, ButterworthOrder)
		if err != nil {
			return nil, err
		}
		bank.filters = append(bank.filters, f)
	}
	return bank, nil
}

// SampleRate returns the rate the bank was designed for
func (fb *FilterBank) SampleRate() float64 {
	return fb.sampleRate
}

// Filters returns the band-pass filters in table order
func (fb *FilterBank) Filters() []*BandPass {
	return fb.filters
}

// Bandpass filters samples through the named band. ok is false when the
// band is not part of the table.
func (fb *FilterBank) Bandpass(samples []float64, band string) (filtered []float64, ok bool) {
	for _, f := range fb.filters {
		if f.band.Name == band {
			return f.Filter(samples), true
		}
	}
	return nil, false
}

// Amplitudes filters the window through every band and returns the mean
// absolute amplitude of each. Bands absent from the table stay 0.
func (fb *FilterBank) Amplitudes(samples []float64) models.BandAmplitudes {
	var amps models.BandAmplitudes
	if len(samples) == 0 {
		return amps
	}

	for _, f := range fb.filters {
		a := Amplitude(f.Filter(samples))
		switch f.band.Name {
		case BandDelta:
			amps.Delta = a
		case BandTheta:
			amps.Theta = a
		case BandAlpha:
			amps.Alpha = a
		case BandBeta:
			amps.Beta = a
		case BandGamma:
			amps.Gamma = a
		}
	}
	return amps
}
