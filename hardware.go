package humanoid

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// Hardware is the boundary to the physical robot (or a simulation of it).
// ReadState returns the latest available sample; the core tolerates errors by
// keeping its previous snapshot. WriteEffort is fire-and-forget: retry and
// backoff policy belong to the implementation, not the control loop.
type Hardware interface {
	ReadState() (SensorData, error)
	WriteEffort(joint string, effort float64)
}

// SimulatedHardware is a software plant for bench runs and tests. Each joint
// integrates its commanded effort as a velocity, clamped to the configured
// joint limits and decaying when the controller goes quiet, so closed-loop
// behavior is observable without a robot on the bus.
type SimulatedHardware struct {
	mu       sync.Mutex
	limits   map[string]JointLimits
	joints   map[string]*simJoint
	lastStep time.Time
	rng      *rand.Rand
}

type simJoint struct {
	position float64
	velocity float64
	effort   float64
}

// effortDecayTau governs how fast a stale effort command bleeds off once the
// control loop stops refreshing it.
const effortDecayTau = 0.05

func NewSimulatedHardware(cfg RealtimeConfig) *SimulatedHardware {
	joints := make(map[string]*simJoint, len(cfg.JointLimits))
	limits := make(map[string]JointLimits, len(cfg.JointLimits))
	for name, lim := range cfg.JointLimits {
		joints[name] = &simJoint{}
		limits[name] = lim
	}
	return &SimulatedHardware{
		limits:   limits,
		joints:   joints,
		lastStep: time.Now(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WriteEffort applies a control effort to one joint. Unknown joints are
// ignored, as a real bus would ignore an unmapped servo ID.
func (h *SimulatedHardware) WriteEffort(joint string, effort float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if j, ok := h.joints[joint]; ok {
		j.effort = effort
	}
}

// ReadState advances the plant by the wall-clock time since the previous read
// and returns the resulting sample.
func (h *SimulatedHardware) ReadState() (SensorData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	dt := now.Sub(h.lastStep).Seconds()
	h.lastStep = now
	if dt < 0 {
		dt = 0
	}

	states := make(map[string]JointState, len(h.joints))
	for name, j := range h.joints {
		j.effort *= math.Exp(-dt / effortDecayTau)
		lim := h.limits[name]
		j.velocity = clamp(j.effort, -lim.MaxVelocity, lim.MaxVelocity)
		j.position += j.velocity * dt
		j.position = clamp(j.position, lim.MinPosition, lim.MaxPosition)

		states[name] = JointState{
			Name:     name,
			Position: j.position + h.noise(0.0005),
			Velocity: j.velocity + h.noise(0.005),
			Effort:   j.effort,
			IsMoving: math.Abs(j.velocity) > 1e-3,
		}
	}

	return SensorData{
		JointStates: states,
		IMU: &IMUData{
			Acceleration:    r3.Vector{X: h.noise(0.05), Y: h.noise(0.05), Z: 9.81 + h.noise(0.05)},
			AngularVelocity: r3.Vector{X: h.noise(0.005), Y: h.noise(0.005), Z: h.noise(0.005)},
			Orientation:     spatialmath.EulerAngles{},
			Temperature:     25.0 + h.noise(1.0),
		},
		ForceTorque: &ForceTorqueData{
			Force:  r3.Vector{Z: h.noise(0.1)},
			Torque: r3.Vector{},
		},
		Timestamp: now,
	}, nil
}

// SetPosition teleports a joint, for test setup.
func (h *SimulatedHardware) SetPosition(joint string, position float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if j, ok := h.joints[joint]; ok {
		j.position = position
		j.velocity = 0
		j.effort = 0
	}
}

func (h *SimulatedHardware) noise(amplitude float64) float64 {
	return (h.rng.Float64() - 0.5) * 2 * amplitude
}
