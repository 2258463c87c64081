package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the ground station configuration file.
type Config struct {
	Settings Settings       `yaml:"settings"`
	Link     LinkConfig     `yaml:"link"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Sequence SequenceConfig `yaml:"sequence"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type Settings struct {
	LogLevel string `yaml:"logLevel"`
	DeviceID string `yaml:"deviceID"`
}

type LinkConfig struct {
	Endpoint    string `yaml:"endpoint"`
	SystemID    uint8  `yaml:"systemID"`
	ComponentID uint8  `yaml:"componentID"`
	StreamRate  int    `yaml:"streamRate"`
}

type TimeoutsConfig struct {
	Connect            time.Duration `yaml:"connect"`
	Poll               time.Duration `yaml:"poll"`
	Mode               time.Duration `yaml:"mode"`
	Arm                time.Duration `yaml:"arm"`
	Position           time.Duration `yaml:"position"`
	PositionAttempts   int           `yaml:"positionAttempts"`
	AutoVerify         time.Duration `yaml:"autoVerify"`
	AutoVerifyAttempts int           `yaml:"autoVerifyAttempts"`
	ClearAck           time.Duration `yaml:"clearAck"`
	MissionItem        time.Duration `yaml:"missionItem"`
	MissionAck         time.Duration `yaml:"missionAck"`
	Navigator          time.Duration `yaml:"navigator"`
}

type SequenceConfig struct {
	LeadingTakeoff    *bool   `yaml:"leadingTakeoff"`
	ApproachDistance  float64 `yaml:"approachDistance"`
	TakeoffAltitude   float32 `yaml:"takeoffAltitude"`
	CruiseAltitude    float32 `yaml:"cruiseAltitude"`
	WaypointThreshold float64 `yaml:"waypointThreshold"`
	MaxAltitude       float32 `yaml:"maxAltitude"`
	MinSatellites     int     `yaml:"minSatellites"`
	MinBatteryVoltage float32 `yaml:"minBatteryVoltage"`
}

// KeepLeadingTakeoff reports the leadingTakeoff setting, true when omitted.
func (s SequenceConfig) KeepLeadingTakeoff() bool {
	return s.LeadingTakeoff == nil || *s.LeadingTakeoff
}

type BridgeConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Broker     string        `yaml:"broker"`
	ClientID   string        `yaml:"clientID"`
	Username   string        `yaml:"username"`
	PrivateKey string        `yaml:"privateKey"`
	Algorithm  string        `yaml:"algorithm"`
	Audience   string        `yaml:"audience"`
	Rate       time.Duration `yaml:"rate"`
}

type RecorderConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used for every field a file leaves out.
func Default() Config {
	return Config{
		Settings: Settings{LogLevel: "INFO", DeviceID: "uav-1"},
		Link: LinkConfig{
			Endpoint:    "udp:127.0.0.1:14550",
			SystemID:    255,
			ComponentID: 190,
			StreamRate:  5,
		},
		Timeouts: TimeoutsConfig{
			Connect:            10 * time.Second,
			Poll:               100 * time.Millisecond,
			Mode:               10 * time.Second,
			Arm:                30 * time.Second,
			Position:           5 * time.Second,
			PositionAttempts:   10,
			AutoVerify:         time.Second,
			AutoVerifyAttempts: 10,
			ClearAck:           time.Second,
			MissionItem:        5 * time.Second,
			MissionAck:         10 * time.Second,
			Navigator:          100 * time.Millisecond,
		},
		Sequence: SequenceConfig{
			ApproachDistance:  300,
			TakeoffAltitude:   50,
			CruiseAltitude:    30,
			WaypointThreshold: 5,
			MaxAltitude:       500,
			MinSatellites:     6,
			MinBatteryVoltage: 10.5,
		},
		Bridge: BridgeConfig{
			Broker:    "tcp://127.0.0.1:1883",
			Username:  "unused",
			Algorithm: "RS256",
			Rate:      100 * time.Millisecond,
		},
		Recorder: RecorderConfig{
			Path:     "data/uav_system.db",
			Interval: 200 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Link.Endpoint == "" {
		return errors.New("link.endpoint is required")
	}
	if c.Timeouts.Poll <= 0 {
		return errors.Errorf("timeouts.poll must be positive, got %s", c.Timeouts.Poll)
	}
	if c.Timeouts.PositionAttempts <= 0 || c.Timeouts.AutoVerifyAttempts <= 0 {
		return errors.New("timeouts attempts must be positive")
	}
	if c.Sequence.MaxAltitude <= 0 {
		return errors.Errorf("sequence.maxAltitude must be positive, got %.1f", c.Sequence.MaxAltitude)
	}
	if c.Bridge.Enabled && c.Bridge.Broker == "" {
		return errors.New("bridge.broker is required when the bridge is enabled")
	}
	if c.Recorder.Enabled && c.Recorder.Path == "" {
		return errors.New("recorder.path is required when the recorder is enabled")
	}
	switch c.Bridge.Algorithm {
	case "", "RS256", "ES256":
	default:
		return errors.Errorf("bridge.algorithm %q isn't supported", c.Bridge.Algorithm)
	}
	return nil
}
