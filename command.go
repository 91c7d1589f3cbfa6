package humanoid

import (
	"sync"
	"time"
)

// CommandType identifies what a MotionCommand asks a joint to do.
type CommandType int

const (
	CommandPosition CommandType = iota
	CommandVelocity
	CommandTorque
	CommandStop
	CommandEmergencyStop
)

func (t CommandType) String() string {
	switch t {
	case CommandPosition:
		return "position"
	case CommandVelocity:
		return "velocity"
	case CommandTorque:
		return "torque"
	case CommandStop:
		return "stop"
	case CommandEmergencyStop:
		return "emergency_stop"
	default:
		return "unknown"
	}
}

// MotionCommand is a single motion request. It is immutable once enqueued and
// consumed exactly once by the control loop, or dropped if it goes stale.
type MotionCommand struct {
	JointName      string         `json:"joint_name"`
	Type           CommandType    `json:"type"`
	TargetPosition *float64       `json:"target_position,omitempty"`
	TargetVelocity *float64       `json:"target_velocity,omitempty"`
	TargetTorque   *float64       `json:"target_torque,omitempty"`
	Duration       *time.Duration `json:"duration,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewPositionCommand builds a position command stamped now.
func NewPositionCommand(joint string, target float64) MotionCommand {
	return MotionCommand{
		JointName:      joint,
		Type:           CommandPosition,
		TargetPosition: &target,
		Timestamp:      time.Now(),
	}
}

// NewStopCommand builds a stop command for one joint, stamped now.
func NewStopCommand(joint string) MotionCommand {
	return MotionCommand{
		JointName: joint,
		Type:      CommandStop,
		Timestamp: time.Now(),
	}
}

// maxQueuedCommands caps the command buffer. When full the oldest entry is
// dropped: queued motion requests age into uselessness faster than new ones,
// and the staleness check at drain time would discard them regardless.
const maxQueuedCommands = 256

// commandQueue is a bounded FIFO. Multiple producers enqueue; only the
// control loop drains, so drains never race each other.
type commandQueue struct {
	mu       sync.Mutex
	commands []MotionCommand
	dropped  uint64
}

func newCommandQueue() *commandQueue {
	return &commandQueue{}
}

// Push appends a command, evicting the oldest entry if the queue is full.
// It reports whether an eviction happened.
func (q *commandQueue) Push(cmd MotionCommand) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	evicted := false
	if len(q.commands) >= maxQueuedCommands {
		q.commands = q.commands[1:]
		q.dropped++
		evicted = true
	}
	q.commands = append(q.commands, cmd)
	return evicted
}

// Drain removes and returns every queued command in FIFO order.
func (q *commandQueue) Drain() []MotionCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.commands) == 0 {
		return nil
	}
	out := q.commands
	q.commands = nil
	return out
}

// requeue puts commands back at the front, ahead of anything enqueued since
// the drain. Used when a drain is cut short mid-batch.
func (q *commandQueue) requeue(cmds []MotionCommand) {
	if len(cmds) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(append([]MotionCommand{}, cmds...), q.commands...)
}

func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

func (q *commandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = nil
}

// Dropped returns the number of commands evicted by the bound so far.
func (q *commandQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
