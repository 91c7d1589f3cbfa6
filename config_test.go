package humanoid

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.JointLimits) != 8 || len(cfg.PIDGains) != 8 {
		t.Fatalf("default config has %d limits / %d gains, want 8 each",
			len(cfg.JointLimits), len(cfg.PIDGains))
	}
	if _, ok := cfg.JointLimits["head_pan"]; !ok {
		t.Fatal("default config missing head_pan")
	}
}

func TestConfigValidationRejectsBadFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RealtimeConfig)
		wantErr string
	}{
		{"zero control frequency", func(c *RealtimeConfig) { c.ControlFrequency = 0 }, "control_frequency"},
		{"negative control frequency", func(c *RealtimeConfig) { c.ControlFrequency = -10 }, "control_frequency"},
		{"zero sensor rate", func(c *RealtimeConfig) { c.SensorUpdateRate = 0 }, "sensor_update_rate"},
		{"zero command timeout", func(c *RealtimeConfig) { c.CommandTimeout = 0 }, "command_timeout"},
		{"no joints", func(c *RealtimeConfig) {
			c.JointLimits = nil
			c.PIDGains = nil
		}, "at least one joint"},
		{"inverted limits", func(c *RealtimeConfig) {
			lim := c.JointLimits["head_pan"]
			lim.MinPosition, lim.MaxPosition = 1, -1
			c.JointLimits["head_pan"] = lim
		}, "min_position"},
		{"zero max velocity", func(c *RealtimeConfig) {
			lim := c.JointLimits["head_pan"]
			lim.MaxVelocity = 0
			c.JointLimits["head_pan"] = lim
		}, "max_velocity"},
		{"zero max acceleration", func(c *RealtimeConfig) {
			lim := c.JointLimits["head_pan"]
			lim.MaxAcceleration = 0
			c.JointLimits["head_pan"] = lim
		}, "max_acceleration"},
		{"zero max torque", func(c *RealtimeConfig) {
			lim := c.JointLimits["head_pan"]
			lim.MaxTorque = 0
			c.JointLimits["head_pan"] = lim
		}, "max_torque"},
		{"negative gain", func(c *RealtimeConfig) {
			g := c.PIDGains["head_pan"]
			g.Kp = -1
			c.PIDGains["head_pan"] = g
		}, "non-negative"},
		{"zero max integral", func(c *RealtimeConfig) {
			g := c.PIDGains["head_pan"]
			g.MaxIntegral = 0
			c.PIDGains["head_pan"] = g
		}, "max_integral"},
		{"zero max output", func(c *RealtimeConfig) {
			g := c.PIDGains["head_pan"]
			g.MaxOutput = 0
			c.PIDGains["head_pan"] = g
		}, "max_output"},
		{"gains for unknown joint", func(c *RealtimeConfig) {
			c.PIDGains["tail_wag"] = DefaultGains
		}, "unknown joint"},
		{"limits without gains", func(c *RealtimeConfig) {
			delete(c.PIDGains, "head_tilt")
		}, "no pid gains"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ControlFrequency = 50
	cfg.CommandTimeout = 250 * time.Millisecond

	path := filepath.Join(t.TempDir(), "realtime.json")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.ControlFrequency != 50 {
		t.Fatalf("control frequency = %v, want 50", loaded.ControlFrequency)
	}
	if loaded.CommandTimeout != 250*time.Millisecond {
		t.Fatalf("command timeout = %v, want 250ms", loaded.CommandTimeout)
	}
	if len(loaded.JointLimits) != len(cfg.JointLimits) {
		t.Fatalf("joint count changed across roundtrip: %d != %d",
			len(loaded.JointLimits), len(cfg.JointLimits))
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("invalid contents rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ControlFrequency = -1
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := SaveConfig(path, cfg); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("expected validation error on load")
		}
	})
}
