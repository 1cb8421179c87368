package models

import "time"

// AcquisitionPass is one completed acquisition pass handed from the
// acquisition loop to the processing loop
type AcquisitionPass struct {
	Timestamp time.Time `json:"timestamp"`
	Samples   []uint32  `json:"samples"`  // Decoded samples of this pass, arrival order
	Packets   int       `json:"packets"`  // Packets decoded successfully
	Dropped   int       `json:"dropped"`  // Packets rejected by the decoder
	Timeouts  int       `json:"timeouts"` // Transport reads that timed out
}

// BandAmplitudes holds the mean absolute amplitude of each band-filtered window.
// Bands missing from the active band table are reported as 0.
type BandAmplitudes struct {
	Delta float64 `json:"delta"`
	Theta float64 `json:"theta"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// FingerCount is the number of finger energies extracted per cycle
const FingerCount = 6

// FingerEnergies are the summed, scaled magnitudes of six sub-ranges of the
// normalized spectrum
type FingerEnergies [FingerCount]float64

// FingerNames are the CSV column names of the finger energies, lowest first
var FingerNames = [FingerCount]string{
	"low_alpha", "med_alpha", "high_alpha",
	"low_beta", "med_beta", "high_beta",
}

// RGB is a colour with channels in [0, 1]
type RGB [3]float64

// Bytes converts the colour to an 8-bit triplet
func (c RGB) Bytes() [3]byte {
	var out [3]byte
	for i, v := range c {
		switch {
		case !(v > 0):
			out[i] = 0
		case v >= 1:
			out[i] = 255
		default:
			out[i] = byte(v*255 + 0.5)
		}
	}
	return out
}

// CycleRecord is everything one processing cycle produces
type CycleRecord struct {
	SessionID      string         `json:"session_id"`
	Timestamp      time.Time      `json:"timestamp"`
	SampleCount    int            `json:"sample_count"`
	EEGMean        float64        `json:"eeg_mean"`
	Fingers        FingerEnergies `json:"brain_fingers"`
	Bands          BandAmplitudes `json:"bands"`
	BrainState     string         `json:"brain_state"`
	StateColor     RGB            `json:"state_color"`
	ChakraTarget   RGB            `json:"chakra_target"`
	ChakraColor    RGB            `json:"chakra_color"`
	ActivityRadius float64        `json:"activity_radius"`
}

// Frame is an RGB raster in row-major order, three bytes per pixel
type Frame struct {
	Kind   string `json:"kind"` // "spectrogram", "waveform" or "fingers"
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"-"`
}
