package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nia-backend/internal/aggregator"
	"nia-backend/internal/classifier"
	"nia-backend/internal/dsp"
	"nia-backend/internal/metrics"
	"nia-backend/internal/models"
)

// CycleSink receives every cycle record
type CycleSink interface {
	HandleCycle(ctx context.Context, rec *models.CycleRecord) error
}

// CycleSinkFunc adapts a function to CycleSink
type CycleSinkFunc func(ctx context.Context, rec *models.CycleRecord) error

func (f CycleSinkFunc) HandleCycle(ctx context.Context, rec *models.CycleRecord) error {
	return f(ctx, rec)
}

// FrameSink receives rendered frames of one kind
type FrameSink interface {
	Kind() string
	Submit(f models.Frame) bool
}

// ProcessingService turns buffer snapshots into cycle records
type ProcessingService struct {
	buffer  *aggregator.SampleBuffer
	bank    *dsp.FilterBank
	chakras *dsp.FilterBank
	tracker *dsp.FingerTracker
	blender *classifier.ChakraBlender
	store   *LatestStore
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger

	sessionID string
	interval  time.Duration

	// Input channel (written by acquisition)
	passes <-chan *models.AcquisitionPass

	sinks      map[string]CycleSink
	frameSinks []FrameSink
}

// ProcessingServiceConfig holds configuration for the processing service
type ProcessingServiceConfig struct {
	SessionID string
	Interval  time.Duration

	// ChakraBank feeds the chakra blend. Nil shares the state bank.
	ChakraBank *dsp.FilterBank
}

// DefaultInterval is used when the configured interval is not positive
const DefaultInterval = 50 * time.Millisecond

// NewProcessingService creates a processing loop reading pass notifications
// from passes
func NewProcessingService(
	buffer *aggregator.SampleBuffer,
	bank *dsp.FilterBank,
	passes <-chan *models.AcquisitionPass,
	store *LatestStore,
	m *metrics.Metrics,
	config ProcessingServiceConfig,
	logger *zap.SugaredLogger,
) *ProcessingService {
	if config.Interval <= 0 {
		logger.Warnf("ProcessingService: interval %v is not positive, using %v", config.Interval, DefaultInterval)
		config.Interval = DefaultInterval
	}
	chakras := config.ChakraBank
	if chakras == nil {
		chakras = bank
	}
	return &ProcessingService{
		buffer:    buffer,
		bank:      bank,
		chakras:   chakras,
		tracker:   dsp.NewFingerTracker(),
		blender:   classifier.NewChakraBlender(),
		store:     store,
		metrics:   m,
		logger:    logger,
		sessionID: config.SessionID,
		interval:  config.Interval,
		passes:    passes,
		sinks:     make(map[string]CycleSink),
	}
}

// AddSink registers a named cycle sink. Call before Start.
func (s *ProcessingService) AddSink(name string, sink CycleSink) {
	s.sinks[name] = sink
}

// AddFrameSink registers a frame consumer. Call before Start.
func (s *ProcessingService) AddFrameSink(sink FrameSink) {
	s.frameSinks = append(s.frameSinks, sink)
}

// Start processes passes until ctx is cancelled or the pass channel closes
func (s *ProcessingService) Start(ctx context.Context) {
	s.logger.Infof("ProcessingService: Starting (session %s, interval %v)...", s.sessionID, s.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ProcessingService: Context cancelled, shutting down...")
			return
		case pass, ok := <-s.passes:
			if !ok {
				s.logger.Info("ProcessingService: Pass channel closed, shutting down...")
				return
			}
			s.process(ctx, pass)
		}

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			s.logger.Info("ProcessingService: Context cancelled, shutting down...")
			return
		case <-timer.C:
		}
	}
}

// process runs one cycle on the current buffer contents
func (s *ProcessingService) process(ctx context.Context, pass *models.AcquisitionPass) {
	snapshot := s.buffer.Snapshot()
	if len(snapshot) == 0 {
		s.logger.Debug("ProcessingService: Buffer empty, skipping cycle")
		return
	}

	start := time.Now()
	rec, chakra, frames := s.Cycle(snapshot)
	rec.Timestamp = pass.Timestamp
	if rec.Timestamp.IsZero() {
		rec.Timestamp = start
	}

	if s.metrics != nil {
		s.metrics.ObserveCycle(rec, time.Since(start).Seconds())
	}
	s.store.Update(rec, chakra, frames...)

	s.logger.Debugf("ProcessingService: %s mean=%.1f bands=%+v", rec.BrainState, rec.EEGMean, rec.Bands)

	for name, sink := range s.sinks {
		if err := sink.HandleCycle(ctx, rec); err != nil {
			s.logger.Errorf("ProcessingService: %s sink: %v", name, err)
		}
	}

	for _, fs := range s.frameSinks {
		for _, f := range frames {
			if f.Kind != fs.Kind() {
				continue
			}
			if !fs.Submit(f) && s.metrics != nil {
				s.metrics.FrameDropped()
			}
		}
	}
}

// Cycle computes the record, chakra blend and frames of one snapshot. It
// advances the finger history and the chakra smoothing state.
func (s *ProcessingService) Cycle(snapshot []uint32) (*models.CycleRecord, classifier.ChakraResult, []models.Frame) {
	x := aggregator.ToFloat(snapshot)

	history, fingers := s.tracker.Update(snapshot)
	bands := s.bank.Amplitudes(x)
	state := classifier.Classify(bands)
	chakraBands := bands
	if s.chakras != s.bank {
		chakraBands = s.chakras.Amplitudes(x)
	}
	chakra := s.blender.Update(chakraBands)

	rec := &models.CycleRecord{
		SessionID:      s.sessionID,
		SampleCount:    len(snapshot),
		EEGMean:        aggregator.Mean(snapshot),
		Fingers:        fingers,
		Bands:          bands,
		BrainState:     state.String(),
		StateColor:     state.Color(),
		ChakraTarget:   chakra.Target,
		ChakraColor:    chakra.Color,
		ActivityRadius: chakra.Radius,
	}

	frames := []models.Frame{
		{Kind: "waveform", Width: dsp.WaveformWidth, Height: dsp.WaveformHeight, Pixels: dsp.Waveform(snapshot)},
		{Kind: "fingers", Width: dsp.HistoryCols, Height: dsp.HistoryRows, Pixels: dsp.GrayToRGB(history)},
	}
	if s.wantsFrame("spectrogram") {
		// nil below two samples
		if sg := dsp.ComputeSpectrogram(x, s.bank.SampleRate()); sg != nil {
			frames = append(frames, sg.Frame(dsp.Viridis))
		}
	}
	return rec, chakra, frames
}

func (s *ProcessingService) wantsFrame(kind string) bool {
	for _, fs := range s.frameSinks {
		if fs.Kind() == kind {
			return true
		}
	}
	return false
}
