package humanoid

import (
	"math"
	"time"
)

// trajectory is a time-parameterized reference path for one joint. It is
// created when a position command is accepted and owned exclusively by the
// control loop's trajectory table.
//
// The duration comes from trapezoidal-motion kinematics, but the position
// curve itself is a smooth-step-eased interpolation rather than the exact
// accel/cruise/decel segments: timing matches the kinematic limits while the
// instantaneous velocity may differ slightly from the commanded maximum.
type trajectory struct {
	startPosition   float64
	targetPosition  float64
	startVelocity   float64
	maxVelocity     float64
	maxAcceleration float64
	startTime       time.Time
	duration        time.Duration
}

func newTrajectory(startPos, targetPos, startVel float64, limits JointLimits, now time.Time) *trajectory {
	distance := math.Abs(targetPos - startPos)
	return &trajectory{
		startPosition:   startPos,
		targetPosition:  targetPos,
		startVelocity:   startVel,
		maxVelocity:     limits.MaxVelocity,
		maxAcceleration: limits.MaxAcceleration,
		startTime:       now,
		duration:        profileDuration(distance, limits.MaxVelocity, limits.MaxAcceleration),
	}
}

// profileDuration computes the move time for a trapezoidal velocity profile,
// falling back to the triangular case when the distance is too short to
// reach cruise velocity.
func profileDuration(distance, maxVel, maxAccel float64) time.Duration {
	if distance == 0 {
		return 0
	}
	accelTime := maxVel / maxAccel
	accelDistance := 0.5 * maxAccel * accelTime * accelTime

	var total float64
	if distance <= 2*accelDistance {
		total = 2 * math.Sqrt(distance/maxAccel)
	} else {
		total = 2*accelTime + (distance-2*accelDistance)/maxVel
	}
	return time.Duration(total * float64(time.Second))
}

// positionAt returns the reference position at the given time. Past the end
// of the profile it returns the target exactly, guaranteeing arrival.
func (tr *trajectory) positionAt(now time.Time) float64 {
	elapsed := now.Sub(tr.startTime).Seconds()
	total := tr.duration.Seconds()
	if elapsed >= total {
		return tr.targetPosition
	}
	progress := smoothStep(elapsed / total)
	return lerp(tr.startPosition, tr.targetPosition, progress)
}

// velocityAt derives the reference velocity by finite difference over 1 ms.
func (tr *trajectory) velocityAt(now time.Time) float64 {
	if tr.finishedAt(now) {
		return 0
	}
	const step = time.Millisecond
	p0 := tr.positionAt(now)
	p1 := tr.positionAt(now.Add(step))
	return (p1 - p0) / step.Seconds()
}

func (tr *trajectory) finishedAt(now time.Time) bool {
	return now.Sub(tr.startTime) >= tr.duration
}

// smoothStep is the cubic ease-in/ease-out curve 3t^2 - 2t^3 on [0,1].
func smoothStep(t float64) float64 {
	t = clamp(t, 0, 1)
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*clamp(t, 0, 1)
}
