package classifier

import "nia-backend/internal/models"

// BrainState is the discrete label chosen by band dominance
type BrainState int

const (
	Neutral BrainState = iota
	Relaxation
	Somnolence
	Calm
	Concentration
)

var stateNames = map[BrainState]string{
	Neutral:       "Neutral",
	Relaxation:    "Relaxation",
	Somnolence:    "Somnolence",
	Calm:          "Calm",
	Concentration: "Concentration",
}

var stateColors = map[BrainState]models.RGB{
	Neutral:       {1, 1, 1}, // white
	Relaxation:    {0, 0, 1}, // blue
	Somnolence:    {0, 1, 0}, // green
	Calm:          {1, 1, 0}, // yellow
	Concentration: {1, 0, 0}, // red
}

func (s BrainState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[Neutral]
}

// Color is the display colour attached to the label
func (s BrainState) Color() models.RGB {
	if c, ok := stateColors[s]; ok {
		return c
	}
	return stateColors[Neutral]
}

// DominantState returns the label of the band strictly greater than the
// other three, checked delta, theta, alpha, beta in that order. Ties and
// NaN inputs give Neutral.
func DominantState(delta, theta, alpha, beta float64) BrainState {
	switch {
	case delta > theta && delta > alpha && delta > beta:
		return Relaxation
	case theta > delta && theta > alpha && theta > beta:
		return Somnolence
	case alpha > delta && alpha > theta && alpha > beta:
		return Calm
	case beta > delta && beta > theta && beta > alpha:
		return Concentration
	default:
		return Neutral
	}
}

// Classify applies DominantState to a set of band amplitudes. Gamma does
// not take part.
func Classify(bands models.BandAmplitudes) BrainState {
	return DominantState(bands.Delta, bands.Theta, bands.Alpha, bands.Beta)
}
