package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Acquisition
	Transport        string // "usb", "mqtt" or "synthetic"
	SampleIntervalMS int
	SampleRateHz     float64
	ReadTimeout      time.Duration

	// Device identity
	VendorID    uint16
	ProductID   uint16
	InterfaceID int
	EndpointIn  int

	// Band filter table for the dominant-state classifier
	BandTable     string // "full" or "classification"
	BandTablePath string // optional YAML override

	// Band filter table for the chakra blend
	ChakraBandTable     string
	ChakraBandTablePath string
	ChakraSampleRateHz  float64

	// Serial / LED output
	SerialPort  string
	SerialBaud  int
	SerialFrame string // "spectrogram", "waveform" or "fingers"

	// CSV output
	CSVPath string

	// HTTP query endpoint
	HTTPAddr string

	// MQTT Configuration
	MQTTEnabled      bool
	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicRaw     string
	MQTTTopicResult  string
	MQTTTopicControl string

	// ClickHouse Configuration
	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string

	LogLevel string

	// Warnings lists values that were rejected in favour of their
	// default. Load runs before the logger exists, so the caller logs them.
	Warnings []string
}

// Load reads the environment (and .env when present)
func Load() *Config {
	_ = godotenv.Load()

	var l loader
	cfg := &Config{
		Transport:        l.getEnv("TRANSPORT", "usb"),
		SampleIntervalMS: l.getEnvPositiveInt("SAMPLE_INTERVAL_MS", 50),
		SampleRateHz:     l.getEnvPositiveFloat("SAMPLE_RATE_HZ", 40),
		ReadTimeout:      time.Duration(l.getEnvPositiveInt("READ_TIMEOUT_MS", 25)) * time.Millisecond,

		VendorID:    uint16(l.getEnvHex("NIA_VENDOR_ID", 0x1234)),
		ProductID:   uint16(l.getEnvHex("NIA_PRODUCT_ID", 0x0000)),
		InterfaceID: l.getEnvInt("NIA_INTERFACE_ID", 0),
		EndpointIn:  int(l.getEnvHex("NIA_ENDPOINT", 0x81)),

		BandTable:     l.getEnv("BAND_TABLE", "classification"),
		BandTablePath: l.getEnv("BAND_TABLE_PATH", ""),

		ChakraBandTable:     l.getEnv("CHAKRA_BAND_TABLE", "full"),
		ChakraBandTablePath: l.getEnv("CHAKRA_BAND_TABLE_PATH", ""),
		ChakraSampleRateHz:  l.getEnvPositiveFloat("CHAKRA_SAMPLE_RATE_HZ", 256),

		SerialPort:  l.getEnv("SERIAL_PORT", ""),
		SerialBaud:  l.getEnvPositiveInt("SERIAL_BAUD", 921600),
		SerialFrame: l.getEnv("SERIAL_FRAME", "spectrogram"),

		CSVPath: l.getEnv("CSV_PATH", "nia_data.csv"),

		HTTPAddr: l.getEnv("HTTP_ADDR", ":8080"),

		MQTTEnabled:      l.getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:       l.getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:     l.getEnv("MQTT_CLIENT_ID", "nia-backend"),
		MQTTUsername:     l.getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     l.getEnv("MQTT_PASSWORD", ""),
		MQTTTopicRaw:     l.getEnv("MQTT_TOPIC_RAW", "nia/+/raw"),
		MQTTTopicResult:  l.getEnv("MQTT_TOPIC_RESULT", "nia/{session_id}/cycle"),
		MQTTTopicControl: l.getEnv("MQTT_TOPIC_CONTROL", "nia/control"),

		ClickHouseEnabled: l.getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    l.getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:      l.getEnv("CLICKHOUSE_DB", "nia"),
		ClickHouseUser:    l.getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:    l.getEnv("CLICKHOUSE_PASS", ""),

		LogLevel: l.getEnv("LOG_LEVEL", "info"),
	}
	cfg.Warnings = l.warnings
	return cfg
}

// SampleInterval returns the configured cadence of both loops
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMS) * time.Millisecond
}

// loader collects a warning for every value it falls back on
type loader struct {
	warnings []string
}

func (l *loader) warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (l *loader) getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		l.warnf("failed to parse %s as float, using default %v: %v", key, defaultValue, err)
		return defaultValue
	}
	return floatValue
}

func (l *loader) getEnvPositiveFloat(key string, defaultValue float64) float64 {
	v := l.getEnvFloat(key, defaultValue)
	if !(v > 0) {
		l.warnf("%s must be positive, got %v, using default %v", key, v, defaultValue)
		return defaultValue
	}
	return v
}

func (l *loader) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		l.warnf("failed to parse %s as int, using default %d: %v", key, defaultValue, err)
		return defaultValue
	}
	return intValue
}

func (l *loader) getEnvPositiveInt(key string, defaultValue int) int {
	v := l.getEnvInt(key, defaultValue)
	if v <= 0 {
		l.warnf("%s must be positive, got %d, using default %d", key, v, defaultValue)
		return defaultValue
	}
	return v
}

// getEnvHex accepts "0x1234", "1234" (hex) style USB identifiers
func (l *loader) getEnvHex(key string, defaultValue uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	hexValue, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(value), "0x"), 16, 16)
	if err != nil {
		l.warnf("failed to parse %s as hex, using default %#x: %v", key, defaultValue, err)
		return defaultValue
	}
	return hexValue
}

func (l *loader) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		l.warnf("failed to parse %s as bool, using default %v: %v", key, defaultValue, err)
		return defaultValue
	}
	return boolValue
}
