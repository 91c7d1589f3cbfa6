package humanoid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLimits(maxVel, maxAccel float64) JointLimits {
	return JointLimits{
		MinPosition:     -10,
		MaxPosition:     10,
		MaxVelocity:     maxVel,
		MaxAcceleration: maxAccel,
		MaxTorque:       10,
	}
}

func TestTrajectoryEndpoints(t *testing.T) {
	start := time.Now()
	tr := newTrajectory(0.5, 2.0, 0, testLimits(1, 2), start)

	if got := tr.positionAt(start); got != 0.5 {
		t.Fatalf("position at start = %v, want 0.5", got)
	}
	if got := tr.positionAt(start.Add(tr.duration)); got != 2.0 {
		t.Fatalf("position at end = %v, want exactly 2.0", got)
	}
	if got := tr.positionAt(start.Add(tr.duration + time.Hour)); got != 2.0 {
		t.Fatalf("position past end = %v, want exactly 2.0", got)
	}
}

func TestTrajectoryMonotonicTowardTarget(t *testing.T) {
	start := time.Now()

	t.Run("ascending", func(t *testing.T) {
		tr := newTrajectory(0, 1, 0, testLimits(1, 2), start)
		prev := tr.positionAt(start)
		for i := 1; i <= 100; i++ {
			at := start.Add(time.Duration(i) * tr.duration / 100)
			pos := tr.positionAt(at)
			if pos < prev {
				t.Fatalf("position regressed at step %d: %v -> %v", i, prev, pos)
			}
			prev = pos
		}
	})

	t.Run("descending", func(t *testing.T) {
		tr := newTrajectory(1, -1, 0, testLimits(1, 2), start)
		prev := tr.positionAt(start)
		for i := 1; i <= 100; i++ {
			at := start.Add(time.Duration(i) * tr.duration / 100)
			pos := tr.positionAt(at)
			if pos > prev {
				t.Fatalf("position rose at step %d: %v -> %v", i, prev, pos)
			}
			prev = pos
		}
	})
}

func TestTrajectoryDurationFormula(t *testing.T) {
	cases := []struct {
		name                      string
		distance, maxVel, maxAccel float64
		want                      float64
	}{
		// accel distance 1.0 each side: distance 1 stays triangular
		{"triangular", 1, 2, 2, 2 * math.Sqrt(0.5)},
		{"triangular boundary", 2, 2, 2, 2.0},
		{"trapezoidal", 10, 2, 2, 2 + (10-2)/2.0},
		{"trapezoidal fast accel", 10, 2, 8, 2*0.25 + (10-0.5)/2.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := profileDuration(tc.distance, tc.maxVel, tc.maxAccel).Seconds()
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestTrajectoryZeroDistance(t *testing.T) {
	start := time.Now()
	tr := newTrajectory(1.5, 1.5, 0, testLimits(1, 2), start)

	if tr.duration != 0 {
		t.Fatalf("zero-distance duration = %v, want 0", tr.duration)
	}
	if !tr.finishedAt(start) {
		t.Fatal("zero-distance trajectory should be finished immediately")
	}
	if got := tr.positionAt(start); got != 1.5 {
		t.Fatalf("zero-distance position = %v, want 1.5", got)
	}
	if got := tr.velocityAt(start); got != 0 {
		t.Fatalf("zero-distance velocity = %v, want 0", got)
	}
}

func TestTrajectoryVelocity(t *testing.T) {
	start := time.Now()
	tr := newTrajectory(0, 1, 0, testLimits(1, 2), start)

	mid := start.Add(tr.duration / 2)
	if v := tr.velocityAt(mid); v <= 0 {
		t.Fatalf("midpoint velocity = %v, want positive for an ascending move", v)
	}
	if v := tr.velocityAt(start.Add(tr.duration)); v != 0 {
		t.Fatalf("velocity after completion = %v, want 0", v)
	}
}

func TestTrajectoryFinished(t *testing.T) {
	start := time.Now()
	tr := newTrajectory(0, 1, 0, testLimits(1, 2), start)

	if tr.finishedAt(start) {
		t.Fatal("should not be finished at start")
	}
	if tr.finishedAt(start.Add(tr.duration - time.Nanosecond)) {
		t.Fatal("should not be finished just before duration")
	}
	if !tr.finishedAt(start.Add(tr.duration)) {
		t.Fatal("should be finished at duration")
	}
}
