package classifier

import (
	"math"

	"nia-backend/internal/dsp"
	"nia-backend/internal/models"
)

// Chakra blend constants
const (
	TransitionSpeed = 0.1
	RadiusScale     = 0.05
)

// Chakra maps a named category to the band driving it and its base colour
type Chakra struct {
	Name  string
	Band  string
	Color models.RGB
}

// Chakras is the fixed category table. Alpha and theta each drive two
// categories.
var Chakras = []Chakra{
	{Name: "Muladhara", Band: dsp.BandDelta, Color: models.RGB{1, 0, 0}},
	{Name: "Svadhisthana", Band: dsp.BandTheta, Color: models.RGB{1, 0.5, 0}},
	{Name: "Manipura", Band: dsp.BandBeta, Color: models.RGB{1, 1, 0}},
	{Name: "Anahata", Band: dsp.BandAlpha, Color: models.RGB{0, 1, 0}},
	{Name: "Vishuddha", Band: dsp.BandAlpha, Color: models.RGB{0, 0, 1}},
	{Name: "Ajna", Band: dsp.BandTheta, Color: models.RGB{0.29, 0, 0.51}},
	{Name: "Sahasrara", Band: dsp.BandGamma, Color: models.RGB{0.93, 0.51, 0.93}},
}

// ChakraResult is one tick of the colour blend
type ChakraResult struct {
	Activation map[string]float64 `json:"activation"`
	Changes    map[string]float64 `json:"changes"`
	Target     models.RGB         `json:"target"`
	Color      models.RGB         `json:"color"`
	Radius     float64            `json:"radius"`
}

// ChakraBlender carries the previous tick's activation and the displayed
// colour between ticks. It is not safe for concurrent use.
type ChakraBlender struct {
	previous map[string]float64
	current  models.RGB
}

// NewChakraBlender starts from zero activation and black
func NewChakraBlender() *ChakraBlender {
	prev := make(map[string]float64, len(Chakras))
	for _, c := range Chakras {
		prev[c.Name] = 0
	}
	return &ChakraBlender{previous: prev}
}

// RelativeChange is |cur-prev|/prev, or 0 when prev is 0 or the result is
// not finite
func RelativeChange(cur, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	r := math.Abs(cur-prev) / prev
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// BandValue picks one amplitude by band name
func BandValue(bands models.BandAmplitudes, band string) float64 {
	switch band {
	case dsp.BandDelta:
		return bands.Delta
	case dsp.BandTheta:
		return bands.Theta
	case dsp.BandAlpha:
		return bands.Alpha
	case dsp.BandBeta:
		return bands.Beta
	case dsp.BandGamma:
		return bands.Gamma
	}
	return 0
}

// CombineColors sums each category's base colour weighted by its positive
// change and clips every channel to [0, 1]
func CombineColors(changes map[string]float64) models.RGB {
	var out models.RGB
	for _, c := range Chakras {
		change := changes[c.Name]
		if change > 0 {
			for i := range out {
				out[i] += c.Color[i] * change
			}
		}
	}
	for i, v := range out {
		out[i] = math.Min(math.Max(v, 0), 1)
	}
	return out
}

// SmoothTransition moves current toward target by speed
func SmoothTransition(current, target models.RGB, speed float64) models.RGB {
	var out models.RGB
	for i := range out {
		out[i] = current[i] + (target[i]-current[i])*speed
	}
	return out
}

// Update computes this tick's relative changes against the previous tick,
// the blended target colour, the smoothed display colour and the activity
// radius, then remembers the activation for the next tick
func (b *ChakraBlender) Update(bands models.BandAmplitudes) ChakraResult {
	activation := make(map[string]float64, len(Chakras))
	changes := make(map[string]float64, len(Chakras))
	var total float64
	for _, c := range Chakras {
		cur := BandValue(bands, c.Band)
		activation[c.Name] = cur
		changes[c.Name] = RelativeChange(cur, b.previous[c.Name])
		total += changes[c.Name]
	}
	b.previous = activation

	target := CombineColors(changes)
	b.current = SmoothTransition(b.current, target, TransitionSpeed)

	return ChakraResult{
		Activation: activation,
		Changes:    changes,
		Target:     target,
		Color:      b.current,
		Radius:     total / float64(len(Chakras)) * RadiusScale,
	}
}

// Color returns the smoothed colour shown after the last Update
func (b *ChakraBlender) Color() models.RGB {
	return b.current
}
