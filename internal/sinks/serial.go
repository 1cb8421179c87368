package sinks

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"nia-backend/internal/models"
)

// DefaultPixelPeriod is the pause between two RGB triplets on the wire
const DefaultPixelPeriod = time.Millisecond

// OpenSerialPort opens the LED controller port in 8N1 mode
func OpenSerialPort(path string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// SerialSink streams frames to a display controller one RGB triplet per
// pixel period, row-major. Frames submitted while one is being sent are dropped.
type SerialSink struct {
	w      io.Writer
	kind   string
	period time.Duration
	frames chan models.Frame
	logger *zap.SugaredLogger
}

// NewSerialSink streams frames of the given kind to w
func NewSerialSink(w io.Writer, kind string, period time.Duration, logger *zap.SugaredLogger) *SerialSink {
	if period <= 0 {
		period = DefaultPixelPeriod
	}
	return &SerialSink{
		w:      w,
		kind:   kind,
		period: period,
		frames: make(chan models.Frame, 1),
		logger: logger,
	}
}

// Kind is the frame source this sink accepts
func (s *SerialSink) Kind() string { return s.kind }

// Submit queues a frame, reporting false when it was dropped
func (s *SerialSink) Submit(f models.Frame) bool {
	if f.Kind != s.kind {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

// Start writes queued frames until ctx is cancelled
func (s *SerialSink) Start(ctx context.Context) {
	s.logger.Infof("SerialSink: Starting (%s frames)...", s.kind)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SerialSink: Context cancelled, shutting down...")
			return
		case f := <-s.frames:
			if err := s.send(ctx, ticker, f); err != nil {
				s.logger.Errorf("SerialSink: %v", err)
			}
		}
	}
}

func (s *SerialSink) send(ctx context.Context, ticker *time.Ticker, f models.Frame) error {
	for i := 0; i+3 <= len(f.Pixels); i += 3 {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := s.w.Write(f.Pixels[i : i+3]); err != nil {
			return fmt.Errorf("write pixel %d: %w", i/3, err)
		}
	}
	return nil
}
