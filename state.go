package humanoid

import (
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// JointState is the most recent physical reading for a single joint.
// It is written by the sensor loop only; everything else sees copies.
type JointState struct {
	Name        string   `json:"name"`
	Position    float64  `json:"position"`
	Velocity    float64  `json:"velocity"`
	Effort      float64  `json:"effort"`
	Temperature *float64 `json:"temperature,omitempty"`
	IsMoving    bool     `json:"is_moving"`
}

// IMUData is a single inertial sample.
type IMUData struct {
	Acceleration    r3.Vector               `json:"acceleration"`
	AngularVelocity r3.Vector               `json:"angular_velocity"`
	Orientation     spatialmath.EulerAngles `json:"orientation"`
	Temperature     float64                 `json:"temperature"`
}

// ForceTorqueData is a single force/torque sensor sample.
type ForceTorqueData struct {
	Force  r3.Vector `json:"force"`
	Torque r3.Vector `json:"torque"`
}

// SensorData is the shared snapshot of everything the sensor loop last saw.
type SensorData struct {
	JointStates map[string]JointState `json:"joint_states"`
	IMU         *IMUData              `json:"imu,omitempty"`
	ForceTorque *ForceTorqueData      `json:"force_torque,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

func newSensorData(jointNames []string) SensorData {
	states := make(map[string]JointState, len(jointNames))
	for _, name := range jointNames {
		states[name] = JointState{Name: name}
	}
	return SensorData{
		JointStates: states,
		Timestamp:   time.Now(),
	}
}

// clone deep-copies the snapshot so readers never alias the live map.
func (d SensorData) clone() SensorData {
	out := d
	out.JointStates = make(map[string]JointState, len(d.JointStates))
	for name, js := range d.JointStates {
		out.JointStates[name] = js
	}
	if d.IMU != nil {
		imu := *d.IMU
		out.IMU = &imu
	}
	if d.ForceTorque != nil {
		ft := *d.ForceTorque
		out.ForceTorque = &ft
	}
	return out
}

// PerformanceStats tracks control tick timing over the life of the loop.
// Average is an exponential moving average so it follows load changes.
type PerformanceStats struct {
	AvgTickDuration time.Duration `json:"avg_tick_duration"`
	MaxTickDuration time.Duration `json:"max_tick_duration"`
	MinTickDuration time.Duration `json:"min_tick_duration"`
	TotalTicks      uint64        `json:"total_ticks"`
	Timestamp       time.Time     `json:"timestamp"`
}

const tickStatsAlpha = 0.1

func (s *PerformanceStats) recordTick(d time.Duration) {
	s.TotalTicks++
	if d > s.MaxTickDuration {
		s.MaxTickDuration = d
	}
	if s.MinTickDuration == 0 || d < s.MinTickDuration {
		s.MinTickDuration = d
	}
	avg := float64(s.AvgTickDuration)*(1-tickStatsAlpha) + float64(d)*tickStatsAlpha
	s.AvgTickDuration = time.Duration(avg)
	s.Timestamp = time.Now()
}

// RealtimeStatus is a read-only rollup of the controller's live state,
// rebuilt on every query.
type RealtimeStatus struct {
	IsRunning             bool                  `json:"is_running"`
	EmergencyStop         bool                  `json:"emergency_stop"`
	ControlLoopFrequency  float64               `json:"control_loop_frequency"`
	SensorUpdateFrequency float64               `json:"sensor_update_frequency"`
	ActiveCommands        int                   `json:"active_commands"`
	ActiveTrajectories    int                   `json:"active_trajectories"`
	LastCommandTime       time.Time             `json:"last_command_time"`
	PerformanceStats      PerformanceStats      `json:"performance_stats"`
	JointStates           map[string]JointState `json:"joint_states"`
}
