package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the settings of the batch classification engine.
type EngineConfig struct {
	ModelPath    string   `yaml:"model_path"`
	ReportDir    string   `yaml:"report_dir"`
	NumWorkers   int      `yaml:"num_workers"`
	QueueSize    int      `yaml:"queue_size"`
	MaxRows      int      `yaml:"max_rows"`
	Sinks        []string `yaml:"sinks"`
	SinkTimeout  string   `yaml:"sink_timeout"`
	PreviewLimit int      `yaml:"preview_limit"`
}

// APIConfig holds the configuration for the HTTP and gRPC endpoints.
type APIConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	GRPCListenAddr  string `yaml:"grpc_listen_addr"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	CacheSize       int    `yaml:"cache_size"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// ProbeConfig holds the NATS connection used to move flow rows and alerts.
type ProbeConfig struct {
	NATSURL      string `yaml:"nats_url"`
	Subject      string `yaml:"subject"`
	AlertSubject string `yaml:"alert_subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SMTPConfig holds the configuration for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AlerterConfig controls the alert digest.
type AlerterConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CheckInterval string `yaml:"check_interval"`
	// MinAlerts is the number of pending alerts needed before a digest is sent.
	MinAlerts int `yaml:"min_alerts"`
	// MaxRows caps the alert rows listed in one digest.
	MaxRows int `yaml:"max_rows"`
}

// StreamConfig drives the row replay harness and the NATS stream classifier.
type StreamConfig struct {
	Dataset  string `yaml:"dataset"`
	Output   string `yaml:"output"`
	Interval string `yaml:"interval"`
	Picker   string `yaml:"picker"`
	Seed     int64  `yaml:"seed"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	API        APIConfig        `yaml:"api"`
	Probe      ProbeConfig      `yaml:"probe"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	Stream     StreamConfig     `yaml:"stream"`
}

const (
	DefaultNumWorkers     = 4
	DefaultQueueSize      = 64
	DefaultMaxRows        = 1_000_000
	DefaultMaxUploadBytes = 256 << 20
	DefaultCacheSize      = 128
	DefaultPreviewLimit   = 1000
)

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", filePath, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.ModelPath == "" {
		c.Engine.ModelPath = "models/ddos_detector.json"
	}
	if c.Engine.ReportDir == "" {
		c.Engine.ReportDir = "reports"
	}
	if c.Engine.NumWorkers <= 0 {
		c.Engine.NumWorkers = DefaultNumWorkers
	}
	if c.Engine.QueueSize <= 0 {
		c.Engine.QueueSize = DefaultQueueSize
	}
	if c.Engine.MaxRows <= 0 {
		c.Engine.MaxRows = DefaultMaxRows
	}
	if c.Engine.SinkTimeout == "" {
		c.Engine.SinkTimeout = "10s"
	}
	if c.Engine.PreviewLimit <= 0 {
		c.Engine.PreviewLimit = DefaultPreviewLimit
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxUploadBytes <= 0 {
		c.API.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.API.CacheSize <= 0 {
		c.API.CacheSize = DefaultCacheSize
	}
	if c.API.ShutdownTimeout == "" {
		c.API.ShutdownTimeout = "5s"
	}

	if c.Probe.Subject == "" {
		c.Probe.Subject = "flowsentry.flows"
	}
	if c.Probe.AlertSubject == "" {
		c.Probe.AlertSubject = "flowsentry.alerts"
	}

	if c.Alerter.CheckInterval == "" {
		c.Alerter.CheckInterval = "1m"
	}
	if c.Alerter.MinAlerts <= 0 {
		c.Alerter.MinAlerts = 1
	}
	if c.Alerter.MaxRows <= 0 {
		c.Alerter.MaxRows = 50
	}

	if c.Stream.Interval == "" {
		c.Stream.Interval = "1s"
	}
	if c.Stream.Picker == "" {
		c.Stream.Picker = "random"
	}
	if c.Stream.Output == "" {
		c.Stream.Output = "stream/generate.csv"
	}
}

func (c *Config) validate() error {
	for name, d := range map[string]string{
		"engine.sink_timeout":    c.Engine.SinkTimeout,
		"api.shutdown_timeout":   c.API.ShutdownTimeout,
		"alerter.check_interval": c.Alerter.CheckInterval,
		"stream.interval":        c.Stream.Interval,
	} {
		v, err := time.ParseDuration(d)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	switch c.Stream.Picker {
	case "random", "sequential":
	default:
		return fmt.Errorf("unknown stream.picker '%s'", c.Stream.Picker)
	}
	return nil
}

// Duration parses a duration field that LoadConfig already validated.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
