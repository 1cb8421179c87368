package dsp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Band is one row of the band-edge table, in Hz. The pass band is [Low, High).
type Band struct {
	Name string  `yaml:"name"`
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// BandTable is the ordered list of bands a FilterBank is built from
type BandTable []Band

// Band names recognised by FilterBank.Amplitudes
const (
	BandDelta = "delta"
	BandTheta = "theta"
	BandAlpha = "alpha"
	BandBeta  = "beta"
	BandGamma = "gamma"
)

// FullBands is the five-band table used for amplitude logging
var FullBands = BandTable{
	{Name: BandDelta, Low: 0.5, High: 3.9},
	{Name: BandTheta, Low: 4.0, High: 7.9},
	{Name: BandAlpha, Low: 8.0, High: 11.9},
	{Name: BandBeta, Low: 12.0, High: 29.9},
	{Name: BandGamma, Low: 30.0, High: 99.9},
}

// ClassificationBands is the four-band table used for brain-state
// classification. Beta stops at 19.9 Hz so the table fits a 40 Hz stream.
var ClassificationBands = BandTable{
	{Name: BandDelta, Low: 0.5, High: 3.9},
	{Name: BandTheta, Low: 4.0, High: 7.9},
	{Name: BandAlpha, Low: 8.0, High: 11.9},
	{Name: BandBeta, Low: 12.0, High: 19.9},
}

// NamedBandTable returns one of the built-in tables
func NamedBandTable(name string) (BandTable, error) {
	switch name {
	case "full":
		return append(BandTable(nil), FullBands...), nil
	case "classification", "":
		return append(BandTable(nil), ClassificationBands...), nil
	default:
		return nil, fmt.Errorf("unknown band table %q", name)
	}
}

type bandFile struct {
	Bands BandTable `yaml:"bands"`
}

// ParseBandTable reads a YAML document of the form
//
//	bands:
//	  - {name: delta, low: 0.5, high: 3.9}
func ParseBandTable(data []byte) (BandTable, error) {
	var f bandFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse band table: %w", err)
	}
	if len(f.Bands) == 0 {
		return nil, fmt.Errorf("band table is empty")
	}
	return f.Bands, nil
}

// LoadBandTable reads a YAML band table from disk
func LoadBandTable(path string) (BandTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read band table: %w", err)
	}
	return ParseBandTable(data)
}
