package humanoid

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// RealtimeController is the realtime joint-motion core: it turns queued
// motion commands into per-tick actuator efforts while a separate loop keeps
// the sensor snapshot fresh. Two goroutines run while started — the control
// loop at ControlFrequency and the sensor loop at SensorUpdateRate — and all
// shared state between them is guarded per data structure, never for a whole
// tick.
type RealtimeController struct {
	cfg    RealtimeConfig
	hw     Hardware
	logger logging.Logger

	lifecycleMu sync.Mutex
	running     bool
	cancelCtx   context.Context
	cancelFunc  func()
	workers     sync.WaitGroup

	emergencyStop atomic.Bool
	estopLatched  bool // control-loop local: true once the active gate has been applied

	queue *commandQueue

	// pids is keyed by joint name and only touched by the control loop while
	// running, or by Stop after both loops have exited.
	pids map[string]*pidController

	trajMu       sync.Mutex
	trajectories map[string]*trajectory

	sensorMu sync.RWMutex
	sensor   SensorData

	statsMu     sync.Mutex
	controlFreq float64
	sensorFreq  float64
	lastCommand time.Time
	perf        PerformanceStats
}

// NewRealtimeController validates the configuration and builds the per-joint
// tables. The controller starts in the stopped state.
func NewRealtimeController(cfg RealtimeConfig, hw Hardware, logger logging.Logger) (*RealtimeController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid realtime config")
	}
	if hw == nil {
		return nil, errors.New("hardware collaborator is required")
	}

	pids := make(map[string]*pidController, len(cfg.PIDGains))
	for name, gains := range cfg.PIDGains {
		pids[name] = newPIDController(gains)
	}

	rc := &RealtimeController{
		cfg:          cfg,
		hw:           hw,
		logger:       logger,
		queue:        newCommandQueue(),
		pids:         pids,
		trajectories: make(map[string]*trajectory),
		sensor:       newSensorData(cfg.jointNames()),
	}
	logger.Infof("realtime controller ready: %d joints, control %.0f Hz, sensors %.0f Hz",
		len(cfg.JointLimits), cfg.ControlFrequency, cfg.SensorUpdateRate)
	return rc, nil
}

// Start launches the control and sensor loops. Calling Start on a running
// controller is a no-op.
func (rc *RealtimeController) Start() error {
	rc.lifecycleMu.Lock()
	defer rc.lifecycleMu.Unlock()
	if rc.running {
		return nil
	}

	rc.cancelCtx, rc.cancelFunc = context.WithCancel(context.Background())
	ctx := rc.cancelCtx

	rc.workers.Add(2)
	goutils.PanicCapturingGo(func() {
		defer rc.workers.Done()
		rc.controlLoop(ctx)
	})
	goutils.PanicCapturingGo(func() {
		defer rc.workers.Done()
		rc.sensorLoop(ctx)
	})

	rc.running = true
	rc.logger.Info("realtime controller started")
	return nil
}

// Stop cancels both loops, waits for them to exit, and clears transient
// state: the command queue, all trajectories, and all PID accumulators.
// Calling Stop on a stopped controller is a no-op.
func (rc *RealtimeController) Stop() error {
	rc.lifecycleMu.Lock()
	defer rc.lifecycleMu.Unlock()
	if !rc.running {
		return nil
	}

	rc.cancelFunc()
	rc.workers.Wait()

	rc.queue.Clear()

	rc.trajMu.Lock()
	rc.trajectories = make(map[string]*trajectory)
	rc.trajMu.Unlock()

	for _, pid := range rc.pids {
		pid.Reset()
	}

	rc.statsMu.Lock()
	rc.controlFreq = 0
	rc.sensorFreq = 0
	rc.statsMu.Unlock()

	rc.running = false
	rc.logger.Info("realtime controller stopped")
	return nil
}

// Running reports whether the loops are live.
func (rc *RealtimeController) Running() bool {
	rc.lifecycleMu.Lock()
	defer rc.lifecycleMu.Unlock()
	return rc.running
}

// AddCommand enqueues a motion request. Joint-scoped commands against an
// unconfigured joint are rejected immediately; everything else is accepted
// and judged at drain time.
func (rc *RealtimeController) AddCommand(cmd MotionCommand) error {
	if cmd.Type != CommandEmergencyStop {
		if _, ok := rc.cfg.JointLimits[cmd.JointName]; !ok {
			return errors.Errorf("unknown joint %q", cmd.JointName)
		}
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	if rc.queue.Push(cmd) {
		rc.logger.Warnf("command queue full, dropped oldest entry (%d dropped so far)", rc.queue.Dropped())
	}

	rc.statsMu.Lock()
	rc.lastCommand = time.Now()
	rc.statsMu.Unlock()
	return nil
}

// SetEmergencyStop raises or clears the safety gate. While raised, every
// control tick discards queued commands, clears all motion planning state,
// and skips actuation. Clearing the gate does not resume prior trajectories;
// motion restarts only when a fresh command arrives.
func (rc *RealtimeController) SetEmergencyStop(stop bool) {
	rc.emergencyStop.Store(stop)
	if stop {
		rc.logger.Warn("emergency stop engaged")
	} else {
		rc.logger.Info("emergency stop released")
	}
}

// EmergencyStopped reports the current state of the safety gate.
func (rc *RealtimeController) EmergencyStopped() bool {
	return rc.emergencyStop.Load()
}

// SensorData returns a deep copy of the latest sensor snapshot.
func (rc *RealtimeController) SensorData() SensorData {
	rc.sensorMu.RLock()
	defer rc.sensorMu.RUnlock()
	return rc.sensor.clone()
}

// Status rebuilds the observability rollup from live state.
func (rc *RealtimeController) Status() RealtimeStatus {
	rc.trajMu.Lock()
	activeTraj := len(rc.trajectories)
	rc.trajMu.Unlock()

	rc.statsMu.Lock()
	controlFreq := rc.controlFreq
	sensorFreq := rc.sensorFreq
	lastCommand := rc.lastCommand
	perf := rc.perf
	rc.statsMu.Unlock()

	snapshot := rc.SensorData()

	return RealtimeStatus{
		IsRunning:             rc.Running(),
		EmergencyStop:         rc.emergencyStop.Load(),
		ControlLoopFrequency:  controlFreq,
		SensorUpdateFrequency: sensorFreq,
		ActiveCommands:        rc.queue.Len(),
		ActiveTrajectories:    activeTraj,
		LastCommandTime:       lastCommand,
		PerformanceStats:      perf,
		JointStates:           snapshot.JointStates,
	}
}

// controlLoop is the fixed-period scheduler: gate check, command drain,
// trajectory pruning, PID evaluation, stats — in that order, every tick.
func (rc *RealtimeController) controlLoop(ctx context.Context) {
	ticker := time.NewTicker(rc.cfg.controlPeriod())
	defer ticker.Stop()

	var tickCount uint64
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			rc.logger.Debug("control loop exiting")
			return
		case <-ticker.C:
		}

		tickStart := time.Now()

		if rc.emergencyStop.Load() {
			rc.applyEmergencyStop()
		} else {
			rc.estopLatched = false
			rc.drainCommands(tickStart)
			rc.evaluateControl(time.Now())
		}

		tickCount++
		tickElapsed := time.Since(tickStart)

		rc.statsMu.Lock()
		rc.perf.recordTick(tickElapsed)
		if window := time.Since(lastStats); window >= time.Second {
			rc.controlFreq = float64(tickCount) / window.Seconds()
			tickCount = 0
			lastStats = time.Now()
		}
		rc.statsMu.Unlock()
	}
}

// applyEmergencyStop clears all planning state, including anything queued
// while the gate is raised: motion requested during an emergency stop must
// not execute on release. It runs every tick while the gate is raised; the
// engagement log fires only on the first of those ticks.
func (rc *RealtimeController) applyEmergencyStop() {
	if discarded := rc.queue.Len(); discarded > 0 {
		rc.queue.Clear()
		rc.logger.Warnf("emergency stop: discarded %d queued commands", discarded)
	}

	rc.trajMu.Lock()
	hadTrajectories := len(rc.trajectories) > 0
	rc.trajectories = make(map[string]*trajectory)
	rc.trajMu.Unlock()

	for _, pid := range rc.pids {
		pid.Reset()
	}

	if !rc.estopLatched {
		rc.estopLatched = true
		if hadTrajectories {
			rc.logger.Warn("emergency stop: discarded active trajectories")
		}
	}
}

// drainCommands consumes the whole queue, applying each command in arrival
// order. An EmergencyStop command halts the drain; the remainder goes back to
// the front of the queue for the next tick.
func (rc *RealtimeController) drainCommands(now time.Time) {
	cmds := rc.queue.Drain()
	for i, cmd := range cmds {
		if age := now.Sub(cmd.Timestamp); age > rc.cfg.CommandTimeout {
			rc.logger.Warnf("dropping stale %s command for joint %q (age %v)", cmd.Type, cmd.JointName, age)
			continue
		}

		switch cmd.Type {
		case CommandPosition:
			if cmd.TargetPosition == nil {
				rc.logger.Warnf("position command for joint %q has no target", cmd.JointName)
				continue
			}
			rc.startPositionMove(cmd.JointName, *cmd.TargetPosition, now)

		case CommandStop:
			rc.trajMu.Lock()
			delete(rc.trajectories, cmd.JointName)
			rc.trajMu.Unlock()
			rc.logger.Debugf("stopped motion on joint %q", cmd.JointName)

		case CommandEmergencyStop:
			rc.logger.Warn("emergency stop command received, halting command drain")
			rc.queue.requeue(cmds[i+1:])
			return

		default:
			// Velocity and Torque are accepted on the wire but not yet driven.
			rc.logger.Debugf("ignoring unsupported %s command for joint %q", cmd.Type, cmd.JointName)
		}
	}
}

// startPositionMove builds a trajectory from the joint's measured state to
// the (limit-clamped) target and installs it, replacing any in-flight move.
// Targets are clamped to the joint envelope unconditionally; the safety flag
// only governs how loudly an out-of-range target is reported.
func (rc *RealtimeController) startPositionMove(joint string, target float64, now time.Time) {
	limits := rc.cfg.JointLimits[joint]

	if clamped := clamp(target, limits.MinPosition, limits.MaxPosition); clamped != target {
		if rc.cfg.EnableSafetyLimits {
			rc.logger.Warnf("joint %q target %.3f outside [%.3f, %.3f], clamping to %.3f",
				joint, target, limits.MinPosition, limits.MaxPosition, clamped)
		} else {
			rc.logger.Debugf("joint %q target %.3f outside [%.3f, %.3f], clamping to %.3f",
				joint, target, limits.MinPosition, limits.MaxPosition, clamped)
		}
		target = clamped
	}

	rc.sensorMu.RLock()
	js := rc.sensor.JointStates[joint]
	rc.sensorMu.RUnlock()

	traj := newTrajectory(js.Position, target, js.Velocity, limits, now)

	rc.trajMu.Lock()
	_, wasActive := rc.trajectories[joint]
	rc.trajectories[joint] = traj
	rc.trajMu.Unlock()

	// A joint that was idle has a stale PID clock; reset so the first tick of
	// the new move does not see a huge dt.
	if !wasActive {
		rc.pids[joint].Reset()
	}

	rc.logger.Debugf("joint %q: new trajectory %.3f -> %.3f over %v",
		joint, js.Position, target, traj.duration)
}

// evaluateControl prunes finished trajectories and runs one PID step for
// every joint still tracking a reference, dispatching efforts to hardware.
func (rc *RealtimeController) evaluateControl(now time.Time) {
	rc.sensorMu.RLock()
	measured := make(map[string]float64, len(rc.sensor.JointStates))
	for name, js := range rc.sensor.JointStates {
		measured[name] = js.Position
	}
	rc.sensorMu.RUnlock()

	rc.trajMu.Lock()
	for joint, traj := range rc.trajectories {
		if traj.finishedAt(now) {
			delete(rc.trajectories, joint)
			rc.logger.Debugf("joint %q: trajectory finished at %.3f", joint, traj.targetPosition)
		}
	}
	active := make(map[string]*trajectory, len(rc.trajectories))
	for joint, traj := range rc.trajectories {
		active[joint] = traj
	}
	rc.trajMu.Unlock()

	for joint, traj := range active {
		pid, ok := rc.pids[joint]
		if !ok {
			continue
		}
		target := traj.positionAt(now)
		output := pid.updateAt(target, measured[joint], now)
		rc.hw.WriteEffort(joint, output)
	}
}

// sensorLoop refreshes the shared snapshot at the configured rate. A failed
// read keeps the previous snapshot; the hardware owns its own recovery.
func (rc *RealtimeController) sensorLoop(ctx context.Context) {
	ticker := time.NewTicker(rc.cfg.sensorPeriod())
	defer ticker.Stop()

	var tickCount uint64
	lastStats := time.Now()

	for {
		select {
		case <-ctx.Done():
			rc.logger.Debug("sensor loop exiting")
			return
		case <-ticker.C:
		}

		reading, err := rc.hw.ReadState()
		if err != nil {
			rc.logger.Debugf("sensor read failed, keeping last snapshot: %v", err)
		} else {
			rc.sensorMu.Lock()
			rc.sensor = reading
			rc.sensorMu.Unlock()
		}

		tickCount++
		if window := time.Since(lastStats); window >= time.Second {
			rc.statsMu.Lock()
			rc.sensorFreq = float64(tickCount) / window.Seconds()
			rc.statsMu.Unlock()
			tickCount = 0
			lastStats = time.Now()
		}
	}
}
