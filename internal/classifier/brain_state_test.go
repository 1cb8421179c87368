package classifier

import (
	"math"
	"math/rand"
	"testing"

	"nia-backend/internal/models"
)

func TestDominantState(t *testing.T) {
	tests := []struct {
		name                      string
		delta, theta, alpha, beta float64
		want                      BrainState
	}{
		{"delta dominates", 4, 1, 2, 3, Relaxation},
		{"theta dominates", 1, 4, 2, 3, Somnolence},
		{"alpha dominates", 1, 2, 4, 3, Calm},
		{"beta dominates", 1, 2, 3, 4, Concentration},
		{"all equal", 2, 2, 2, 2, Neutral},
		{"delta theta tie on top", 3, 3, 1, 1, Neutral},
		{"alpha beta tie on top", 1, 1, 3, 3, Neutral},
		{"tie below the top", 5, 1, 1, 1, Relaxation},
		{"zeros", 0, 0, 0, 0, Neutral},
		{"nan input", math.NaN(), 1, 0, 0, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DominantState(tt.delta, tt.theta, tt.alpha, tt.beta); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDominantState_Total(t *testing.T) {
	valid := map[BrainState]bool{Neutral: true, Relaxation: true, Somnolence: true, Calm: true, Concentration: true}
	rng := rand.New(rand.NewSource(3))
	levels := []float64{0, 1, 2, 3}

	for i := 0; i < 5000; i++ {
		var v [4]float64
		for j := range v {
			// Small integer levels force plenty of ties
			v[j] = levels[rng.Intn(len(levels))]
		}
		got := DominantState(v[0], v[1], v[2], v[3])
		if !valid[got] {
			t.Fatalf("invalid state %d for %v", got, v)
		}

		top, count, idx := v[0], 0, 0
		for j, x := range v {
			if x > top {
				top, idx = x, j
			}
		}
		for _, x := range v {
			if x == top {
				count++
			}
		}
		want := Neutral
		if count == 1 {
			want = []BrainState{Relaxation, Somnolence, Calm, Concentration}[idx]
		}
		if got != want {
			t.Fatalf("%v: expected %v, got %v", v, want, got)
		}
	}
}

func TestBrainState_LabelsAndColors(t *testing.T) {
	if Relaxation.String() != "Relaxation" || Neutral.String() != "Neutral" {
		t.Fatalf("unexpected labels %q %q", Relaxation, Neutral)
	}
	if Concentration.Color() != (models.RGB{1, 0, 0}) {
		t.Fatalf("concentration must be red, got %v", Concentration.Color())
	}
	if BrainState(42).String() != "Neutral" {
		t.Fatalf("unknown states fall back to Neutral")
	}
}

func TestClassify_IgnoresGamma(t *testing.T) {
	got := Classify(models.BandAmplitudes{Delta: 1, Theta: 2, Alpha: 3, Beta: 4, Gamma: 100})
	if got != Concentration {
		t.Fatalf("expected Concentration, got %v", got)
	}
}
