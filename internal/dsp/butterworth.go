package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// ButterworthOrder is the prototype order of every band-pass in the bank.
// The band-pass transform doubles it, giving ButterworthOrder biquads.
const ButterworthOrder = 5

// biquad is one second-order section in transposed direct form II
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// BandPass is a digital Butterworth band-pass filter realised as a cascade
// of second-order sections. Filtering is forward only with zero initial
// state, so the output carries the filter's phase delay and start-up
// transient.
type BandPass struct {
	band       Band
	sampleRate float64
	sections   []biquad
}

// newBandPass designs the filter for normalized edges 0 < low < high < 1
// (fractions of Nyquist): analog prototype, low-pass to band-pass
// transform, then bilinear transform with pre-warped edges.
func newBandPass(band Band, sampleRate, low, high float64, order int) (*BandPass, error) {
	const fs = 2.0 // design in Nyquist-normalized units
	w0 := 2 * fs * math.Tan(math.Pi*low/fs)
	w1 := 2 * fs * math.Tan(math.Pi*high/fs)
	bw := w1 - w0
	wo := math.Sqrt(w0 * w1)

	// Analog Butterworth prototype poles on the left half unit circle
	poles := make([]complex128, 0, 2*order)
	for m := -order + 1; m < order; m += 2 {
		p := -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*order)))
		lp := p * complex(bw/2, 0)
		root := cmplx.Sqrt(lp*lp - complex(wo*wo, 0))
		poles = append(poles, lp+root, lp-root)
	}

	// Bilinear transform. The band-pass zeros (order at s=0, order at
	// s=infinity) land on z=+1 and z=-1.
	gain := complex(math.Pow(bw, float64(order))*math.Pow(2*fs, float64(order)), 0)
	zpoles := make([]complex128, len(poles))
	for i, p := range poles {
		zpoles[i] = (complex(2*fs, 0) + p) / (complex(2*fs, 0) - p)
		gain /= complex(2*fs, 0) - p
	}

	sections, err := pairSections(zpoles)
	if err != nil {
		return nil, fmt.Errorf("design %s band-pass: %w", band.Name, err)
	}
	k := real(gain)
	sections[0].b0 *= k
	sections[0].b1 *= k
	sections[0].b2 *= k

	return &BandPass{band: band, sampleRate: sampleRate, sections: sections}, nil
}

// pairSections groups z-plane poles into biquads. Complex poles pair with
// their conjugates, real poles pair with each other. Every section gets the
// numerator (1 - z^-1)(1 + z^-1).
func pairSections(poles []complex128) ([]biquad, error) {
	const eps = 1e-12

	var reals []float64
	var sections []biquad
	for _, p := range poles {
		switch {
		case math.Abs(imag(p)) <= eps:
			reals = append(reals, real(p))
		case imag(p) > 0:
			sections = append(sections, biquad{
				b0: 1, b1: 0, b2: -1,
				a1: -2 * real(p),
				a2: real(p)*real(p) + imag(p)*imag(p),
			})
		}
	}

	if len(reals)%2 != 0 {
		return nil, fmt.Errorf("unpaired real pole")
	}
	sort.Float64s(reals)
	for i := 0; i < len(reals); i += 2 {
		p1, p2 := reals[i], reals[i+1]
		sections = append(sections, biquad{
			b0: 1, b1: 0, b2: -1,
			a1: -(p1 + p2),
			a2: p1 * p2,
		})
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no poles")
	}
	return sections, nil
}

// Band returns the band the filter was designed for
func (f *BandPass) Band() Band {
	return f.band
}

// Filter runs the samples through the cascade and returns the filtered
// sequence. The input is not modified.
func (f *BandPass) Filter(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)

	for _, s := range f.sections {
		var z1, z2 float64
		for i, x := range out {
			y := s.b0*x + z1
			z1 = s.b1*x - s.a1*y + z2
			z2 = s.b2*x - s.a2*y
			out[i] = y
		}
	}
	return out
}

// Response returns the magnitude of the frequency response at freqHz
func (f *BandPass) Response(freqHz float64) float64 {
	w := 2 * math.Pi * freqHz / f.sampleRate
	zInv := cmplx.Exp(complex(0, -w))
	zInv2 := zInv * zInv

	h := complex(1, 0)
	for _, s := range f.sections {
		num := complex(s.b0, 0) + complex(s.b1, 0)*zInv + complex(s.b2, 0)*zInv2
		den := complex(1, 0) + complex(s.a1, 0)*zInv + complex(s.a2, 0)*zInv2
		h *= num / den
	}
	return cmplx.Abs(h)
}

// Amplitude returns the mean absolute value of a filtered sequence, 0 when
// it is empty
func Amplitude(filtered []float64) float64 {
	if len(filtered) == 0 {
		return 0
	}
	var sum float64
	for _, v := range filtered {
		sum += math.Abs(v)
	}
	return sum / float64(len(filtered))
}
