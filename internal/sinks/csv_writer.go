package sinks

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"nia-backend/internal/models"
)

// CSVHeader is the column layout of the cycle log
var CSVHeader = []string{
	"timestamp", "eeg_mean",
	"low_alpha", "med_alpha", "high_alpha", "low_beta", "med_beta", "high_beta",
	"delta", "theta", "alpha", "beta", "gamma",
	"brain_state",
}

// CSVWriter appends one row per cycle to a file, writing the header when the
// file is new or empty
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVWriter opens path for appending
func NewCSVWriter(path string) (*CSVWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat CSV file %s: %w", path, err)
	}

	c := &CSVWriter{file: file, w: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := c.w.Write(CSVHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		c.w.Flush()
	}
	return c, nil
}

// Write appends rec and flushes so the file is readable while acquiring
func (c *CSVWriter) Write(rec *models.CycleRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.Write(csvRow(rec)); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return c.file.Close()
}

func csvRow(rec *models.CycleRecord) []string {
	row := make([]string, 0, len(CSVHeader))
	row = append(row, rec.Timestamp.Format(time.RFC3339Nano), formatFloat(rec.EEGMean))
	for _, f := range rec.Fingers {
		row = append(row, formatFloat(f))
	}
	b := rec.Bands
	row = append(row,
		formatFloat(b.Delta), formatFloat(b.Theta), formatFloat(b.Alpha),
		formatFloat(b.Beta), formatFloat(b.Gamma),
		rec.BrainState,
	)
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
