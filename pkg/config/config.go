package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDeviceName is the name advertised to pairing peers.
const DefaultDeviceName = "ESP32-BT"

// Config represents the application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	ADC      ADCConfig      `yaml:"adc"`
	Link     LinkConfig     `yaml:"link"`
	Console  ConsoleConfig  `yaml:"console"`
	Loop     LoopConfig     `yaml:"loop"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Mock     MockConfig     `yaml:"mock"`
}

// DeviceConfig contains the device identity.
type DeviceConfig struct {
	Name string `yaml:"name"`
}

// ADCConfig selects the converter backend. Gain and data rate are fixed and
// intentionally not part of the configuration.
type ADCConfig struct {
	Backend string `yaml:"backend"` // "periph" or "mock"
	Bus     string `yaml:"bus"`     // I2C bus name, "" opens the first one
	Address uint16 `yaml:"address"`
}

// LinkConfig selects the wireless serial endpoint.
type LinkConfig struct {
	Kind    string `yaml:"kind"`    // "rfcomm", "nus" or "stdout"
	Port    string `yaml:"port"`    // RFCOMM tty
	Baud    int    `yaml:"baud"`    // RFCOMM tty baud rate
	Adapter string `yaml:"adapter"` // BlueZ adapter object name
}

// ConsoleConfig contains the diagnostic console configuration.
type ConsoleConfig struct {
	Port string `yaml:"port"` // "" writes to stdout
	Baud int    `yaml:"baud"`
}

// LoopConfig contains acquisition loop parameters.
type LoopConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // 0 = busy poll
	Precision    int           `yaml:"precision"`     // -1 = shortest representation
}

// MetricsConfig contains the Prometheus endpoint configuration.
type MetricsConfig struct {
	Bind string `yaml:"bind"` // "" disables the endpoint
}

// ReceiverConfig contains host-side receiver parameters.
type ReceiverConfig struct {
	Port         string        `yaml:"port"` // "" probes every available port
	Baud         int           `yaml:"baud"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	Samples      int           `yaml:"samples"`
	Channels     []bool        `yaml:"channels"`
	Average      int           `yaml:"average"` // Sliding window in samples; 0 or 1 disables
}

// MockConfig contains mock converter configuration.
type MockConfig struct {
	Amplitude  []float64 `yaml:"amplitude"`   // Peak voltage per channel (V)
	Offset     []float64 `yaml:"offset"`      // DC offset per channel (V)
	Frequency  []float64 `yaml:"frequency"`   // Signal frequency per channel (Hz)
	NoiseLevel float64   `yaml:"noise_level"` // Noise level (V)
	FailInit   bool      `yaml:"fail_init"`   // Simulate a missing chip
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: DefaultDeviceName,
		},
		ADC: ADCConfig{
			Backend: "periph",
			Bus:     "",
			Address: 0x48,
		},
		Link: LinkConfig{
			Kind:    "rfcomm",
			Port:    "/dev/rfcomm0",
			Baud:    115200,
			Adapter: "hci0",
		},
		Console: ConsoleConfig{
			Port: "",
			Baud: 115200,
		},
		Loop: LoopConfig{
			PollInterval: 0,
			Precision:    -1,
		},
		Metrics: MetricsConfig{
			Bind: "",
		},
		Receiver: ReceiverConfig{
			Port:         "",
			Baud:         115200,
			ProbeTimeout: time.Second,
			Samples:      2500,
			Channels:     []bool{true, true, true},
		},
		Mock: MockConfig{
			Amplitude:  []float64{1.0, 0.5, 0.25},
			Offset:     []float64{1.65, 1.65, 1.0},
			Frequency:  []float64{1.0, 5.0, 0.2},
			NoiseLevel: 0.002,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Name == "" {
		c.Device.Name = def.Device.Name
	}

	if c.ADC.Backend == "" {
		c.ADC.Backend = def.ADC.Backend
	}
	if c.ADC.Address == 0 {
		c.ADC.Address = def.ADC.Address
	}

	if c.Link.Kind == "" {
		c.Link.Kind = def.Link.Kind
	}
	if c.Link.Port == "" {
		c.Link.Port = def.Link.Port
	}
	if c.Link.Baud == 0 {
		c.Link.Baud = def.Link.Baud
	}
	if c.Link.Adapter == "" {
		c.Link.Adapter = def.Link.Adapter
	}

	if c.Console.Baud == 0 {
		c.Console.Baud = def.Console.Baud
	}

	if c.Receiver.Baud == 0 {
		c.Receiver.Baud = def.Receiver.Baud
	}
	if c.Receiver.ProbeTimeout == 0 {
		c.Receiver.ProbeTimeout = def.Receiver.ProbeTimeout
	}
	if c.Receiver.Samples == 0 {
		c.Receiver.Samples = def.Receiver.Samples
	}
	if len(c.Receiver.Channels) == 0 {
		c.Receiver.Channels = def.Receiver.Channels
	}

	if len(c.Mock.Amplitude) == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
	if len(c.Mock.Offset) == 0 {
		c.Mock.Offset = def.Mock.Offset
	}
	if len(c.Mock.Frequency) == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
}
