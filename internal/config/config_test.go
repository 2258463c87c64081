package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
settings:
  logLevel: DEBUG
link:
  endpoint: "/dev/ttyUSB0,57600"
timeouts:
  mode: 4s
  arm: 45s
sequence:
  leadingTakeoff: false
  approachDistance: 150
bridge:
  enabled: true
  broker: "ssl://mqtt.example.com:8883"
  algorithm: ES256
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Settings.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q", cfg.Settings.LogLevel)
	}
	if cfg.Link.Endpoint != "/dev/ttyUSB0,57600" {
		t.Errorf("Endpoint = %q", cfg.Link.Endpoint)
	}
	if cfg.Timeouts.Mode != 4*time.Second || cfg.Timeouts.Arm != 45*time.Second {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.MissionAck != 10*time.Second {
		t.Errorf("MissionAck default lost: %v", cfg.Timeouts.MissionAck)
	}
	if cfg.Sequence.KeepLeadingTakeoff() {
		t.Errorf("KeepLeadingTakeoff() = true, want false")
	}
	if cfg.Sequence.ApproachDistance != 150 || cfg.Sequence.MaxAltitude != 500 {
		t.Errorf("Sequence = %+v", cfg.Sequence)
	}
	if !cfg.Bridge.Enabled || cfg.Bridge.Algorithm != "ES256" || cfg.Bridge.Rate != 100*time.Millisecond {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
}

func TestDefaultKeepsLeadingTakeoff(t *testing.T) {
	cfg, err := Parse([]byte("settings:\n  logLevel: INFO\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.Sequence.KeepLeadingTakeoff() {
		t.Errorf("KeepLeadingTakeoff() = false by default")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":         "link: [",
		"empty endpoint":   "link:\n  endpoint: \"\"\n",
		"bad algorithm":    "bridge:\n  algorithm: HS256\n",
		"no max altitude":  "sequence:\n  maxAltitude: -1\n",
		"no poll":          "timeouts:\n  poll: 0s\n",
		"recorder no path": "recorder:\n  enabled: true\n  path: \"\"\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Errorf("Parse() accepted %q", doc)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcs.yaml")
	if err := os.WriteFile(path, []byte("link:\n  endpoint: tcp:127.0.0.1:5760\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Link.Endpoint != "tcp:127.0.0.1:5760" {
		t.Errorf("Endpoint = %q", cfg.Link.Endpoint)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() of a missing file succeeded")
	}
}
