package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/input/udp"
	"github.com/reStrike-d-o-o/reStrike-VTA/output/journal"
	natsout "github.com/reStrike-d-o-o/reStrike-VTA/output/nats"
	"github.com/reStrike-d-o-o/reStrike-VTA/output/websocket"
)

// DefaultEnvPrefix prefixes every environment override, e.g. VTA_LISTENER_PORT.
const DefaultEnvPrefix = "VTA_"

// maxConfigSize bounds a single configuration layer.
const maxConfigSize = 1 << 20

// Config is the complete vtafeed configuration
type Config struct {
	Listener  udp.Config       `json:"listener" yaml:"listener" toml:"listener" envPrefix:"LISTENER_"`
	Publisher PublisherConfig  `json:"publisher" yaml:"publisher" toml:"publisher" envPrefix:"PUBLISHER_"`
	WebSocket websocket.Config `json:"websocket" yaml:"websocket" toml:"websocket" envPrefix:"WEBSOCKET_"`
	NATS      natsout.Config   `json:"nats" yaml:"nats" toml:"nats" envPrefix:"NATS_"`
	Journal   journal.Config   `json:"journal" yaml:"journal" toml:"journal" envPrefix:"JOURNAL_"`
	Metrics   MetricsConfig    `json:"metrics" yaml:"metrics" toml:"metrics" envPrefix:"METRICS_"`
}

// PublisherConfig sizes the notification fan-out
type PublisherConfig struct {
	// QueueSize is the default per-subscriber queue capacity.
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE"`
}

// MetricsConfig controls the metrics, health and state HTTP server
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	Path    string `json:"path" yaml:"path" toml:"path" env:"PATH"`
}

// Default returns the built-in configuration every layer is merged over.
func Default() *Config {
	return &Config{
		Listener:  udp.DefaultConfig(),
		Publisher: PublisherConfig{QueueSize: 256},
		WebSocket: websocket.DefaultConfig(),
		NATS:      natsout.DefaultConfig(),
		Journal:   journal.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"listener", c.Listener.Validate},
		{"websocket", c.websocketValidate},
		{"nats", c.NATS.Validate},
		{"journal", c.Journal.Validate},
		{"metrics", c.Metrics.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", s.name)
		}
	}

	if c.Publisher.QueueSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("publisher queue size %d: %w", c.Publisher.QueueSize, errors.ErrInvalidConfig),
			"Config", "Validate", "publisher")
	}
	if c.Metrics.Enabled && c.WebSocket.Enabled && c.Metrics.Addr == c.WebSocket.Addr {
		return errors.WrapInvalid(fmt.Errorf("metrics and websocket both bind %s: %w", c.Metrics.Addr, errors.ErrInvalidConfig),
			"Config", "Validate", "address conflict")
	}
	return nil
}

func (c *Config) websocketValidate() error {
	if !c.WebSocket.Enabled {
		return nil
	}
	return c.WebSocket.Validate()
}

// Validate checks the metrics server settings
func (m MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		return fmt.Errorf("addr %q: %w", m.Addr, errors.ErrInvalidConfig)
	}
	if m.Path == "" || m.Path[0] != '/' {
		return fmt.Errorf("path %q: %w", m.Path, errors.ErrInvalidConfig)
	}
	return nil
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers      []string
	validation  bool
	envPrefix   string
	environment map[string]string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// SetEnvironment replaces the process environment as the override source.
func (l *Loader) SetEnvironment(environment map[string]string) {
	l.environment = environment
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges every layer over the defaults, applies environment overrides
// and validates when enabled.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads one layer into a generic map, choosing the decoder by extension.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unsupported config format %q: %w", ext, errors.ErrInvalidConfig),
			"Loader", "loadRaw", "detect format")
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "decode "+filepath.Base(path))
	}
	return raw, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	opts := env.Options{Prefix: l.envPrefix}
	if l.environment != nil {
		opts.Environment = l.environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse environment")
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	return os.ReadFile(path)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "toMap", "marshal defaults")
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "Loader", "toMap", "unmarshal defaults")
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}
