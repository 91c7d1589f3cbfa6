package humanoid

import (
	"encoding/json"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
)

// PIDGains holds the feedback gains for one joint. Immutable after startup.
type PIDGains struct {
	Kp          float64 `json:"kp"`
	Ki          float64 `json:"ki"`
	Kd          float64 `json:"kd"`
	MaxIntegral float64 `json:"max_integral"`
	MaxOutput   float64 `json:"max_output"`
}

// JointLimits holds the kinematic envelope for one joint. Immutable after startup.
type JointLimits struct {
	MinPosition     float64 `json:"min_position"`
	MaxPosition     float64 `json:"max_position"`
	MaxVelocity     float64 `json:"max_velocity"`
	MaxAcceleration float64 `json:"max_acceleration"`
	MaxTorque       float64 `json:"max_torque"`
}

// RealtimeConfig configures the realtime joint-motion core. It is passed to
// NewRealtimeController by value; there is no global configuration state.
type RealtimeConfig struct {
	ControlFrequency   float64       `json:"control_frequency"`
	SensorUpdateRate   float64       `json:"sensor_update_rate"`
	CommandTimeout     time.Duration `json:"command_timeout"`
	EnableSafetyLimits bool          `json:"enable_safety_limits"`

	PIDGains    map[string]PIDGains    `json:"pid_gains"`
	JointLimits map[string]JointLimits `json:"joint_limits"`
}

// DefaultGains matches the stock tuning for the hobby-class servos this
// controller was written against.
var DefaultGains = PIDGains{
	Kp:          1.0,
	Ki:          0.1,
	Kd:          0.05,
	MaxIntegral: 10.0,
	MaxOutput:   100.0,
}

// DefaultLimits is the stock joint envelope in radians.
var DefaultLimits = JointLimits{
	MinPosition:     -math.Pi,
	MaxPosition:     math.Pi,
	MaxVelocity:     2.0,
	MaxAcceleration: 5.0,
	MaxTorque:       10.0,
}

// defaultJointNames is the upper-body joint set of the robot.
var defaultJointNames = []string{
	"head_pan", "head_tilt",
	"left_shoulder_pitch", "left_shoulder_roll", "left_elbow_pitch",
	"right_shoulder_pitch", "right_shoulder_roll", "right_elbow_pitch",
}

// DefaultConfig returns a ready-to-run configuration: 100 Hz control,
// 200 Hz sensor refresh, stock gains and limits for every known joint.
func DefaultConfig() RealtimeConfig {
	gains := make(map[string]PIDGains, len(defaultJointNames))
	limits := make(map[string]JointLimits, len(defaultJointNames))
	for _, name := range defaultJointNames {
		gains[name] = DefaultGains
		limits[name] = DefaultLimits
	}
	return RealtimeConfig{
		ControlFrequency:   100.0,
		SensorUpdateRate:   200.0,
		CommandTimeout:     time.Second,
		EnableSafetyLimits: true,
		PIDGains:           gains,
		JointLimits:        limits,
	}
}

// Validate checks every field and rejects the first offending one with a
// descriptive error. A config that passes Validate is safe to run.
func (c *RealtimeConfig) Validate() error {
	if c.ControlFrequency <= 0 {
		return errors.Errorf("control_frequency must be positive, got %v", c.ControlFrequency)
	}
	if c.SensorUpdateRate <= 0 {
		return errors.Errorf("sensor_update_rate must be positive, got %v", c.SensorUpdateRate)
	}
	if c.CommandTimeout <= 0 {
		return errors.Errorf("command_timeout must be positive, got %v", c.CommandTimeout)
	}
	if len(c.JointLimits) == 0 {
		return errors.New("at least one joint must be configured")
	}
	for name, limits := range c.JointLimits {
		if limits.MinPosition >= limits.MaxPosition {
			return errors.Errorf("joint %q: min_position %v must be below max_position %v",
				name, limits.MinPosition, limits.MaxPosition)
		}
		if limits.MaxVelocity <= 0 {
			return errors.Errorf("joint %q: max_velocity must be positive, got %v", name, limits.MaxVelocity)
		}
		if limits.MaxAcceleration <= 0 {
			return errors.Errorf("joint %q: max_acceleration must be positive, got %v", name, limits.MaxAcceleration)
		}
		if limits.MaxTorque <= 0 {
			return errors.Errorf("joint %q: max_torque must be positive, got %v", name, limits.MaxTorque)
		}
	}
	for name, gains := range c.PIDGains {
		if _, ok := c.JointLimits[name]; !ok {
			return errors.Errorf("pid gains configured for unknown joint %q", name)
		}
		if gains.Kp < 0 || gains.Ki < 0 || gains.Kd < 0 {
			return errors.Errorf("joint %q: gains must be non-negative, got kp=%v ki=%v kd=%v",
				name, gains.Kp, gains.Ki, gains.Kd)
		}
		if gains.MaxIntegral <= 0 {
			return errors.Errorf("joint %q: max_integral must be positive, got %v", name, gains.MaxIntegral)
		}
		if gains.MaxOutput <= 0 {
			return errors.Errorf("joint %q: max_output must be positive, got %v", name, gains.MaxOutput)
		}
	}
	for name := range c.JointLimits {
		if _, ok := c.PIDGains[name]; !ok {
			return errors.Errorf("joint %q has limits but no pid gains", name)
		}
	}
	return nil
}

// jointNames returns the configured joint set in no particular order.
func (c *RealtimeConfig) jointNames() []string {
	names := make([]string, 0, len(c.JointLimits))
	for name := range c.JointLimits {
		names = append(names, name)
	}
	return names
}

// controlPeriod is the fixed period of one control tick.
func (c *RealtimeConfig) controlPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.ControlFrequency)
}

// sensorPeriod is the fixed period of one sensor refresh.
func (c *RealtimeConfig) sensorPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.SensorUpdateRate)
}

// LoadConfig reads and validates a configuration file. Fields absent from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (RealtimeConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return RealtimeConfig{}, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RealtimeConfig{}, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return RealtimeConfig{}, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// SaveConfig writes a configuration file, creating or truncating it.
func SaveConfig(path string, cfg RealtimeConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}
