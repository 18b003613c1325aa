// Package config loads the planter configuration from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the planter configuration.
type Config struct {
	Name        string            `yaml:"name"`
	Timezone    string            `yaml:"timezone"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	Sensors     []SensorConfig    `yaml:"sensors"`
	Valves      []ValveConfig     `yaml:"valves"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Loops       LoopConfig        `yaml:"loops"`
	Remote      RemoteConfig      `yaml:"remote"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Influx      InfluxConfig      `yaml:"influx"`
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
}

// HardwareConfig selects the board backend and its wiring.
type HardwareConfig struct {
	Backend     string    `yaml:"backend"` // "rpio" or "sim"
	I2CBus      string    `yaml:"i2c_bus"` // "" selects the first bus
	ADCAddress  uint16    `yaml:"adc_address"`
	ADCBits     int       `yaml:"adc_bits"` // readings are scaled to this resolution
	ButtonPin   int       `yaml:"button_pin"`
	ActiveLow   bool      `yaml:"button_active_low"`
	LED         LEDConfig `yaml:"led"`
	ThermalZone string    `yaml:"thermal_zone"`
	Sim         SimConfig `yaml:"sim"`
}

// LEDConfig holds the pins of the RGB status LED. -1 disables a color.
type LEDConfig struct {
	Red   int `yaml:"red"`
	Green int `yaml:"green"`
	Blue  int `yaml:"blue"`
}

// SimConfig tunes the simulated board.
type SimConfig struct {
	DecayPerMin float64       `yaml:"decay_per_min"`
	GainPerMin  float64       `yaml:"gain_per_min"`
	Noise       float64       `yaml:"noise"`
	Seed        float64       `yaml:"seed"`
	ButtonDelay time.Duration `yaml:"button_delay"`
}

// SensorConfig describes one soil sensor. MeanDry/MeanWet are used when
// calibration is skipped or fails.
type SensorConfig struct {
	Name    string  `yaml:"name"`
	Channel int     `yaml:"channel"`
	MeanDry float64 `yaml:"mean_dry"`
	MeanWet float64 `yaml:"mean_wet"`
}

// ValveConfig describes one solenoid valve and the sensor in its pot.
type ValveConfig struct {
	Name   string `yaml:"name"`
	Pin    int    `yaml:"pin"`
	Sensor string `yaml:"sensor"`
}

// CalibrationConfig contains the interactive calibration parameters.
type CalibrationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Samples  int           `yaml:"samples"`
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
	Settle   time.Duration `yaml:"settle"`
	Timeout  time.Duration `yaml:"timeout"` // per button wait, 0 = forever
}

// LoopConfig contains the periods of the two control loops.
type LoopConfig struct {
	SyncPeriod   time.Duration `yaml:"sync_period"`
	RecordPeriod time.Duration `yaml:"record_period"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	SoakFactor   int           `yaml:"soak_factor"`
}

// RemoteConfig points at the realtime database.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ParamsTable    string        `yaml:"params_table"`
	TelemetryTable string        `yaml:"telemetry_table"`
	CAFile         string        `yaml:"ca_file"`
	Timeout        time.Duration `yaml:"timeout"`
	BreakerFails   int           `yaml:"breaker_fails"`
	BreakerOpen    time.Duration `yaml:"breaker_open"`
}

// MQTTConfig is optional; an empty host disables the local bus.
type MQTTConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// InfluxConfig is optional; an empty URL disables the history sink.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Name:     "planter",
		Timezone: "America/Los_Angeles",
		Hardware: HardwareConfig{
			Backend:     "sim",
			ADCAddress:  0x48,
			ADCBits:     12,
			ButtonPin:   17,
			LED:         LEDConfig{Red: 22, Green: 23, Blue: 24},
			ThermalZone: "/sys/class/thermal/thermal_zone0/temp",
			Sim: SimConfig{
				DecayPerMin: 0.001,
				GainPerMin:  0.02,
				Noise:       8,
				Seed:        0.30,
				ButtonDelay: 2 * time.Second,
			},
		},
		Sensors: []SensorConfig{
			{Name: "Sensor_1", Channel: 0, MeanDry: 2615, MeanWet: 1040},
			{Name: "Sensor_2", Channel: 1, MeanDry: 2615, MeanWet: 1040},
		},
		Valves: []ValveConfig{
			{Name: "Valve_1", Pin: 5, Sensor: "Sensor_1"},
			{Name: "Valve_2", Pin: 6, Sensor: "Sensor_2"},
		},
		Calibration: CalibrationConfig{
			Enabled:  false,
			Samples:  5,
			Interval: 500 * time.Millisecond,
			Debounce: 50 * time.Millisecond,
			Settle:   time.Second,
		},
		Loops: LoopConfig{
			SyncPeriod:   time.Minute,
			RecordPeriod: time.Hour,
			RetryDelay:   5 * time.Second,
			SoakFactor:   2,
		},
		Remote: RemoteConfig{
			ParamsTable:    "Parameters",
			TelemetryTable: "Sensor_Data",
			Timeout:        10 * time.Second,
			BreakerFails:   5,
			BreakerOpen:    2 * time.Minute,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: "planter",
		},
		Influx: InfluxConfig{
			Org:         "planter",
			Bucket:      "garden",
			Measurement: "soil_moisture",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		GRPC: GRPCConfig{Addr: ":50051"},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveReferences stores calibrated dry/wet references for the named sensors.
// The file is re-read without environment overrides and only mean_dry and
// mean_wet change, so secrets injected through the environment never reach
// disk.
func SaveReferences(filename string, refs map[string][2]float64) error {
	cfg := Default()
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}
	for i := range cfg.Sensors {
		if r, ok := refs[cfg.Sensors[i].Name]; ok {
			cfg.Sensors[i].MeanDry, cfg.Sensors[i].MeanWet = r[0], r[1]
		}
	}
	return cfg.Save(filename)
}

// Location resolves the configured timezone. An unknown zone falls back to UTC.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks cross references between sensors and valves.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sensor on channel %d has no name", s.Channel)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate sensor %q", s.Name)
		}
		names[s.Name] = true
	}
	valves := make(map[string]bool, len(c.Valves))
	for _, v := range c.Valves {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("valve on pin %d has no name", v.Pin)
		}
		if valves[v.Name] {
			return fmt.Errorf("duplicate valve %q", v.Name)
		}
		valves[v.Name] = true
		if v.Sensor != "" && !names[v.Sensor] {
			return fmt.Errorf("valve %q references unknown sensor %q", v.Name, v.Sensor)
		}
	}
	switch c.Hardware.Backend {
	case "rpio", "sim":
	default:
		return fmt.Errorf("unknown hardware backend %q", c.Hardware.Backend)
	}
	return nil
}

// ensureDefaults fills zero values left by a partial file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Hardware.Backend == "" {
		c.Hardware.Backend = def.Hardware.Backend
	}
	if c.Hardware.ADCAddress == 0 {
		c.Hardware.ADCAddress = def.Hardware.ADCAddress
	}
	if c.Hardware.ADCBits <= 0 || c.Hardware.ADCBits > 15 {
		c.Hardware.ADCBits = def.Hardware.ADCBits
	}
	if c.Hardware.ThermalZone == "" {
		c.Hardware.ThermalZone = def.Hardware.ThermalZone
	}
	if c.Hardware.Sim.Seed == 0 {
		c.Hardware.Sim.Seed = def.Hardware.Sim.Seed
	}
	for i := range c.Sensors {
		if c.Sensors[i].MeanDry == 0 && c.Sensors[i].MeanWet == 0 {
			c.Sensors[i].MeanDry = def.Sensors[0].MeanDry
			c.Sensors[i].MeanWet = def.Sensors[0].MeanWet
		}
	}

	if c.Calibration.Samples <= 0 {
		c.Calibration.Samples = def.Calibration.Samples
	}
	if c.Calibration.Interval == 0 {
		c.Calibration.Interval = def.Calibration.Interval
	}
	if c.Calibration.Settle == 0 {
		c.Calibration.Settle = def.Calibration.Settle
	}
	if c.Calibration.Debounce == 0 {
		c.Calibration.Debounce = def.Calibration.Debounce
	}

	if c.Loops.SyncPeriod <= 0 {
		c.Loops.SyncPeriod = def.Loops.SyncPeriod
	}
	if c.Loops.RecordPeriod <= 0 {
		c.Loops.RecordPeriod = def.Loops.RecordPeriod
	}
	if c.Loops.RetryDelay <= 0 {
		c.Loops.RetryDelay = def.Loops.RetryDelay
	}
	if c.Loops.SoakFactor <= 0 {
		c.Loops.SoakFactor = def.Loops.SoakFactor
	}

	if c.Remote.ParamsTable == "" {
		c.Remote.ParamsTable = def.Remote.ParamsTable
	}
	if c.Remote.TelemetryTable == "" {
		c.Remote.TelemetryTable = def.Remote.TelemetryTable
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = def.Remote.Timeout
	}
	if c.Remote.BreakerFails <= 0 {
		c.Remote.BreakerFails = def.Remote.BreakerFails
	}
	if c.Remote.BreakerOpen <= 0 {
		c.Remote.BreakerOpen = def.Remote.BreakerOpen
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = def.MQTT.Port
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Name
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = def.Influx.Measurement
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = def.GRPC.Addr
	}
}

// applyEnv overrides secrets and endpoints, so the YAML file can be shared.
func (c *Config) applyEnv() {
	c.Name = env("PLANTER_NAME", c.Name)
	c.Timezone = env("PLANTER_TZ", c.Timezone)
	c.Hardware.Backend = env("PLANTER_BACKEND", c.Hardware.Backend)
	c.Calibration.Enabled = envBool("PLANTER_CALIBRATE", c.Calibration.Enabled)
	c.Loops.SyncPeriod = envDuration("PLANTER_SYNC_PERIOD", c.Loops.SyncPeriod)
	c.Loops.RecordPeriod = envDuration("PLANTER_RECORD_PERIOD", c.Loops.RecordPeriod)

	c.Remote.BaseURL = env("FIREBASE_URL", c.Remote.BaseURL)
	c.Remote.APIKey = env("FIREBASE_API_KEY", c.Remote.APIKey)
	c.Remote.CAFile = env("FIREBASE_CA_FILE", c.Remote.CAFile)

	c.MQTT.Host = env("MQTT_HOST", c.MQTT.Host)
	c.MQTT.Port = envInt("MQTT_PORT", c.MQTT.Port)
	c.MQTT.User = env("MQTT_USER", c.MQTT.User)
	c.MQTT.Password = env("MQTT_PASSWORD", c.MQTT.Password)

	c.Influx.URL = env("INFLUX_URL", c.Influx.URL)
	c.Influx.Token = env("INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = env("INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = env("INFLUX_BUCKET", c.Influx.Bucket)

	c.HTTP.Addr = env("HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = env("GRPC_ADDR", c.GRPC.Addr)
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
