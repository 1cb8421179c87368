package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nia-backend/internal/aggregator"
	"nia-backend/internal/device"
	"nia-backend/internal/metrics"
	"nia-backend/internal/models"
)

// AcquisitionService reads packets from the transport, decodes them into the
// sample buffer and notifies processing after every pass. It is the only
// writer of the buffer.
type AcquisitionService struct {
	transport device.Transport
	buffer    *aggregator.SampleBuffer
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger

	readsPerPass int

	// Output channel (written by acquisition, read by processing)
	PassChan chan *models.AcquisitionPass

	fatal  chan error
	failed atomic.Bool
}

// AcquisitionServiceConfig holds configuration for the acquisition service
type AcquisitionServiceConfig struct {
	Interval    time.Duration // cadence shared with processing
	ChannelSize int
}

// DefaultAcquisitionServiceConfig returns default configuration
func DefaultAcquisitionServiceConfig() AcquisitionServiceConfig {
	return AcquisitionServiceConfig{
		Interval:    DefaultInterval,
		ChannelSize: 1,
	}
}

// ReadsPerPass is the number of transport reads per pass: half the interval
// in milliseconds, at least one
func ReadsPerPass(interval time.Duration) int {
	n := int(interval/time.Millisecond) / 2
	if n < 1 {
		return 1
	}
	return n
}

// NewAcquisitionService creates a service that owns transport and closes it
// when Start returns
func NewAcquisitionService(
	transport device.Transport,
	buffer *aggregator.SampleBuffer,
	m *metrics.Metrics,
	config AcquisitionServiceConfig,
	logger *zap.SugaredLogger,
) *AcquisitionService {
	if config.Interval <= 0 {
		logger.Warnf("AcquisitionService: interval %v is not positive, using %v", config.Interval, DefaultInterval)
		config.Interval = DefaultInterval
	}
	if config.ChannelSize < 1 {
		config.ChannelSize = 1
	}
	return &AcquisitionService{
		transport:    transport,
		buffer:       buffer,
		metrics:      m,
		logger:       logger,
		readsPerPass: ReadsPerPass(config.Interval),
		PassChan:     make(chan *models.AcquisitionPass, config.ChannelSize),
		fatal:        make(chan error, 1),
	}
}

// Fatal delivers the error that stopped acquisition for good
func (s *AcquisitionService) Fatal() <-chan error {
	return s.fatal
}

// Failed reports whether acquisition stopped on an access failure. Once set
// it stays set.
func (s *AcquisitionService) Failed() bool {
	return s.failed.Load()
}

// Start runs passes until ctx is cancelled or the transport becomes
// unreadable. PassChan is closed on return.
func (s *AcquisitionService) Start(ctx context.Context) {
	s.logger.Infof("AcquisitionService: Starting (%d reads per pass)...", s.readsPerPass)

	defer func() {
		if err := s.transport.Close(); err != nil {
			s.logger.Warnf("AcquisitionService: Error closing transport: %v", err)
		}
		close(s.PassChan)
		s.logger.Info("AcquisitionService: Shutdown complete")
	}()

	for {
		if ctx.Err() != nil {
			s.logger.Info("AcquisitionService: Context cancelled, shutting down...")
			return
		}

		pass, err := s.runPass(ctx)
		if err != nil {
			s.failed.Store(true)
			s.logger.Errorf("AcquisitionService: %v", err)
			s.fatal <- err
			return
		}
		if ctx.Err() != nil {
			s.logger.Info("AcquisitionService: Context cancelled, shutting down...")
			return
		}

		s.buffer.Append(pass.Samples...)
		if s.metrics != nil {
			s.metrics.ObservePass(pass, s.buffer.Len())
		}

		// Processing always reads the newest buffer state, so an unread
		// notification can be replaced by this one
		select {
		case s.PassChan <- pass:
		default:
			s.logger.Debug("AcquisitionService: Processing busy, pass notification coalesced")
		}
	}
}

// runPass performs one pass of reads. Only ErrAccessDenied aborts it.
func (s *AcquisitionService) runPass(ctx context.Context) (*models.AcquisitionPass, error) {
	pass := &models.AcquisitionPass{
		Samples: make([]uint32, 0, s.readsPerPass*aggregator.MaxSamplesPerPacket),
	}

	for i := 0; i < s.readsPerPass; i++ {
		raw, err := s.transport.Read(ctx)
		if ctx.Err() != nil {
			break
		}

		switch {
		case err == nil:
		case errors.Is(err, device.ErrTimeout):
			pass.Timeouts++
			continue
		case errors.Is(err, device.ErrAccessDenied):
			return nil, fmt.Errorf("transport read: %w", err)
		default:
			pass.Dropped++
			s.logger.Warnf("AcquisitionService: Transport read failed: %v", err)
			continue
		}

		samples, err := aggregator.DecodePacket(raw)
		if err != nil {
			pass.Dropped++
			s.logger.Warnf("AcquisitionService: Dropping packet: %v", err)
			continue
		}
		pass.Packets++
		pass.Samples = append(pass.Samples, samples...)
	}

	pass.Timestamp = time.Now()
	return pass, nil
}
