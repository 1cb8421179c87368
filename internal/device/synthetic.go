package device

import (
	"context"
	"math"
	"sync"
	"time"

	"nia-backend/internal/aggregator"
)

// SyntheticConfig describes the generated test signal
type SyntheticConfig struct {
	SampleRate       float64 // Hz
	SamplesPerPacket int     // at most aggregator.MaxSamplesPerPacket
	Offset           float64 // DC level of the 24-bit stream
	Amplitude        float64 // amplitude of the 1 Hz component
	Timeout          time.Duration
	Paced            bool // release samples at SampleRate instead of on demand
}

// DefaultSyntheticConfig is a 40 Hz stream of 1 Hz + 0.5 x 8 Hz around mid-scale
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		SampleRate:       40,
		SamplesPerPacket: 16,
		Offset:           1 << 23,
		Amplitude:        1 << 20,
		Timeout:          25 * time.Millisecond,
		Paced:            true,
	}
}

// SyntheticTransport produces NIA-layout packets carrying a sine mixture,
// for running the pipeline without hardware
type SyntheticTransport struct {
	cfg SyntheticConfig

	mu      sync.Mutex
	start   time.Time
	emitted int64
	closed  bool
}

// NewSyntheticTransport creates a generator starting at time zero of the signal
func NewSyntheticTransport(cfg SyntheticConfig) *SyntheticTransport {
	if cfg.SamplesPerPacket <= 0 || cfg.SamplesPerPacket > aggregator.MaxSamplesPerPacket {
		cfg.SamplesPerPacket = aggregator.MaxSamplesPerPacket
	}
	if !(cfg.SampleRate > 0) {
		cfg.SampleRate = 40
	}
	return &SyntheticTransport{cfg: cfg}
}

// Read returns the next packet. When paced, it waits until the packet's
// samples are due, giving up with ErrTimeout after the configured timeout.
func (t *SyntheticTransport) Read(ctx context.Context) ([]byte, error) {
	if ctx.Err() != nil {
		return cancelled(), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrAccessDenied
	}
	if t.start.IsZero() {
		t.start = time.Now()
	}

	if t.cfg.Paced {
		n := t.emitted + int64(t.cfg.SamplesPerPacket)
		due := t.start.Add(time.Duration(float64(n) / t.cfg.SampleRate * float64(time.Second)))
		wait := time.Until(due)
		if wait > t.cfg.Timeout {
			if !sleepCtx(ctx, t.cfg.Timeout) {
				return cancelled(), nil
			}
			return nil, ErrTimeout
		}
		if wait > 0 && !sleepCtx(ctx, wait) {
			return cancelled(), nil
		}
	}

	samples := make([]uint32, t.cfg.SamplesPerPacket)
	for i := range samples {
		samples[i] = t.sample(t.emitted + int64(i))
	}
	t.emitted += int64(len(samples))

	buf := make([]byte, PacketLength)
	if err := aggregator.EncodeSamples(buf, samples); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *SyntheticTransport) sample(n int64) uint32 {
	tm := float64(n) / t.cfg.SampleRate
	v := t.cfg.Offset + t.cfg.Amplitude*(math.Sin(2*math.Pi*1*tm)+0.5*math.Sin(2*math.Pi*8*tm))
	return uint32(math.Min(math.Max(v, 0), 1<<24-1))
}

// Close stops the generator; further reads fail
func (t *SyntheticTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
