package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"nia-backend/internal/aggregator"
	"nia-backend/internal/api"
	"nia-backend/internal/database"
	"nia-backend/internal/device"
	"nia-backend/internal/dsp"
	"nia-backend/internal/logging"
	"nia-backend/internal/metrics"
	"nia-backend/internal/models"
	"nia-backend/internal/mqtt"
	"nia-backend/internal/services"
	"nia-backend/internal/sinks"
	"nia-backend/pkg/config"
)

func main() {
	os.Exit(run())
}

// run wires the pipeline and blocks until shutdown. The return value is the
// process exit code: 1 when acquisition lost the device.
func run() int {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Starting NIA Backend Service...")
	for _, w := range cfg.Warnings {
		logger.Warnf("Config: %s", w)
	}

	// === Filter banks ===
	bank, err := buildFilterBank(cfg.BandTablePath, cfg.BandTable, cfg.SampleRateHz, logger)
	if err != nil {
		return 1
	}
	chakraBank, err := buildFilterBank(cfg.ChakraBandTablePath, cfg.ChakraBandTable, cfg.ChakraSampleRateHz, logger)
	if err != nil {
		return 1
	}

	sessionID := uuid.NewString()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := func(reason string) {
		logger.Infof("Shutdown requested (%s)", reason)
		cancel()
	}

	// === MQTT ===
	controlChan := make(chan *models.ControlCommand, 4)
	packetChan := make(chan []byte, 256)
	cycleChan := make(chan *models.CycleRecord, 50)

	var subscriber *mqtt.Subscriber
	var publisher *mqtt.Publisher
	if cfg.MQTTEnabled || cfg.Transport == "mqtt" {
		logger.Info("Connecting to MQTT broker...")
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, logger)
		if err != nil {
			logger.Errorf("Failed to initialize MQTT client: %v", err)
			return 1
		}
		defer mqttClient.Close()

		subConfig := mqtt.SubscriberConfig{ControlTopic: cfg.MQTTTopicControl}
		if cfg.Transport == "mqtt" {
			subConfig.RawTopic = cfg.MQTTTopicRaw
		}
		subscriber = mqtt.NewSubscriber(mqttClient.GetNativeClient(), subConfig, packetChan, controlChan, logger)
		if err := subscriber.SubscribeAll(); err != nil {
			logger.Errorf("Failed to subscribe to MQTT topics: %v", err)
			return 1
		}
		mqttClient.OnReconnect(subscriber.Resubscribe)

		if cfg.MQTTTopicResult != "" {
			publisher = mqtt.NewPublisher(mqttClient.GetNativeClient(),
				mqtt.PublisherConfig{ResultTopic: cfg.MQTTTopicResult}, cycleChan, logger)
		}
	}

	// === ClickHouse ===
	var db *database.ClickHouseDB
	if cfg.ClickHouseEnabled {
		db, err = database.NewClickHouseDB(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDB,
			cfg.ClickHouseUser, cfg.ClickHousePass, logger)
		if err != nil {
			logger.Errorf("Failed to initialize ClickHouse: %v", err)
			return 1
		}
		defer db.Close()

		session := &database.Session{
			SessionID:  sessionID,
			StartedAt:  time.Now(),
			Transport:  cfg.Transport,
			BandTable:  tableName(cfg.BandTablePath, cfg.BandTable),
			SampleRate: cfg.SampleRateHz,
			Device:     deviceDescriptor(cfg),
		}
		if err := db.SaveSession(ctx, session); err != nil {
			logger.Warnf("Failed to register session: %v", err)
		}
	}

	// === Local sinks ===
	var csvWriter *sinks.CSVWriter
	if cfg.CSVPath != "" {
		csvWriter, err = sinks.NewCSVWriter(cfg.CSVPath)
		if err != nil {
			logger.Errorf("Failed to open CSV sink: %v", err)
			return 1
		}
		defer csvWriter.Close()
	}

	var serialPort serial.Port
	if cfg.SerialPort != "" {
		serialPort, err = sinks.OpenSerialPort(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			logger.Errorf("Failed to open serial sink: %v", err)
			return 1
		}
		defer serialPort.Close()
	}

	// === Transport ===
	// Opened last: from here on the acquisition service owns and closes it
	transport, err := newTransport(cfg, packetChan, subscriber, logger)
	if err != nil {
		logger.Errorf("Failed to open %s transport: %v", cfg.Transport, err)
		return 1
	}

	// === Pipeline ===
	buffer := aggregator.NewSampleBuffer(aggregator.DefaultBufferCapacity)
	m := metrics.New()
	store := services.NewLatestStore()
	hub := api.NewHub()

	acquisition := services.NewAcquisitionService(transport, buffer, m,
		services.AcquisitionServiceConfig{Interval: cfg.SampleInterval(), ChannelSize: 1}, logger)

	processing := services.NewProcessingService(buffer, bank, acquisition.PassChan, store, m,
		services.ProcessingServiceConfig{
			SessionID:  sessionID,
			Interval:   cfg.SampleInterval(),
			ChakraBank: chakraBank,
		}, logger)
	processing.AddSink("websocket", hub)

	if csvWriter != nil {
		processing.AddSink("csv", services.CycleSinkFunc(func(_ context.Context, rec *models.CycleRecord) error {
			return csvWriter.Write(rec)
		}))
	}

	if db != nil {
		processing.AddSink("clickhouse", services.CycleSinkFunc(db.SaveCycle))
	}

	if publisher != nil {
		processing.AddSink("mqtt", services.CycleSinkFunc(func(_ context.Context, rec *models.CycleRecord) error {
			select {
			case cycleChan <- rec:
				return nil
			default:
				return fmt.Errorf("publish queue full, dropping cycle")
			}
		}))
	}

	var wg sync.WaitGroup
	startService := func(start func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}

	if serialPort != nil {
		serialSink := sinks.NewSerialSink(serialPort, cfg.SerialFrame, sinks.DefaultPixelPeriod, logger)
		processing.AddFrameSink(serialSink)
		startService(serialSink.Start)
	}

	if publisher != nil {
		startService(publisher.Start)
	}
	startService(acquisition.Start)
	startService(processing.Start)
	startService(func(ctx context.Context) { controlLoop(ctx, controlChan, shutdown, logger) })

	// === HTTP API ===
	apiConfig := api.Config{
		Addr:      cfg.HTTPAddr,
		SessionID: sessionID,
		State:     store,
		Hub:       hub,
		Metrics:   m.Handler(),
		Shutdown:  shutdown,
	}
	if db != nil {
		apiConfig.History = db
	}
	server := api.NewServer(apiConfig, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API server failed: %v", err)
			shutdown("api server error")
		}
	}()

	// === Log startup info ===
	logger.Info("=== NIA Backend Service is running ===")
	logger.Infof("Session:     %s", sessionID)
	logger.Infof("Transport:   %s", cfg.Transport)
	logger.Infof("Sample rate: %.1f Hz, interval %v, %d reads per pass",
		cfg.SampleRateHz, cfg.SampleInterval(), services.ReadsPerPass(cfg.SampleInterval()))
	logBank(logger, "State bands: ", tableName(cfg.BandTablePath, cfg.BandTable), bank)
	logBank(logger, "Chakra bands:", tableName(cfg.ChakraBandTablePath, cfg.ChakraBandTable), chakraBank)
	logger.Infof("HTTP:        %s", cfg.HTTPAddr)
	logger.Info("Press Ctrl+C to exit...")

	// === Wait for shutdown ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Infof("Signal %v received, stopping services...", sig)
	case err := <-acquisition.Fatal():
		logger.Errorf("Acquisition stopped: %v", err)
		exitCode = 1
	case <-ctx.Done():
	}
	cancel()

	// === Graceful shutdown ===
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		logger.Warnf("API server shutdown: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		logger.Warn("Timed out waiting for services to stop")
	}

	if acquisition.Failed() {
		exitCode = 1
	}
	logger.Infof("Shutdown complete (exit code %d). Goodbye!", exitCode)
	return exitCode
}

// controlLoop handles control commands from MQTT
func controlLoop(ctx context.Context, commands <-chan *models.ControlCommand, shutdown func(string), logger *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			switch cmd.Command {
			case "shutdown":
				shutdown(cmd.Source)
				return
			default:
				logger.Warnf("Ignoring unknown control command %q from %s", cmd.Command, cmd.Source)
			}
		}
	}
}

func newTransport(cfg *config.Config, packets chan []byte, sub *mqtt.Subscriber, logger *zap.SugaredLogger) (device.Transport, error) {
	switch cfg.Transport {
	case "usb":
		return device.OpenUSB(deviceDescriptor(cfg), cfg.ReadTimeout, logger)
	case "synthetic":
		sc := device.DefaultSyntheticConfig()
		sc.SampleRate = cfg.SampleRateHz
		sc.Timeout = cfg.ReadTimeout
		return device.NewSyntheticTransport(sc), nil
	case "mqtt":
		return device.NewChannelTransport(packets, cfg.ReadTimeout, sub.Unsubscribe), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// buildFilterBank loads a named or YAML band table and designs its filters.
// Failures are logged here; the caller only exits.
func buildFilterBank(path, name string, sampleRate float64, logger *zap.SugaredLogger) (*dsp.FilterBank, error) {
	var table dsp.BandTable
	var err error
	if path != "" {
		table, err = dsp.LoadBandTable(path)
	} else {
		table, err = dsp.NamedBandTable(name)
	}
	if err != nil {
		logger.Errorf("Failed to load band table %s: %v", tableName(path, name), err)
		return nil, err
	}

	bank, err := dsp.NewFilterBank(table, sampleRate)
	if err != nil {
		var cfgErr *dsp.FilterConfigError
		if errors.As(err, &cfgErr) {
			logger.Errorf("Band %q of table %s cannot be filtered at %.1f Hz: %v",
				cfgErr.Band.Name, tableName(path, name), sampleRate, err)
		} else {
			logger.Errorf("Failed to build filter bank %s: %v", tableName(path, name), err)
		}
		return nil, err
	}
	return bank, nil
}

func tableName(path, name string) string {
	if path != "" {
		return path
	}
	return name
}

func logBank(logger *zap.SugaredLogger, label, name string, bank *dsp.FilterBank) {
	logger.Infof("%s %s at %.1f Hz", label, name, bank.SampleRate())
	for _, f := range bank.Filters() {
		b := f.Band()
		logger.Infof("  - %-6s %5.1f - %5.1f Hz", b.Name, b.Low, b.High)
	}
}

func deviceDescriptor(cfg *config.Config) models.DeviceDescriptor {
	return models.DeviceDescriptor{
		VendorID:    cfg.VendorID,
		ProductID:   cfg.ProductID,
		InterfaceID: cfg.InterfaceID,
		EndpointIn:  cfg.EndpointIn,
	}
}
