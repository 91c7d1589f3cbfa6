package humanoid

import (
	"fmt"
	"testing"
)

func TestCommandQueueFIFO(t *testing.T) {
	q := newCommandQueue()
	for i := 0; i < 5; i++ {
		q.Push(NewPositionCommand(fmt.Sprintf("joint_%d", i), float64(i)))
	}

	if q.Len() != 5 {
		t.Fatalf("len = %d, want 5", q.Len())
	}

	cmds := q.Drain()
	if len(cmds) != 5 {
		t.Fatalf("drained %d commands, want 5", len(cmds))
	}
	for i, cmd := range cmds {
		if want := fmt.Sprintf("joint_%d", i); cmd.JointName != want {
			t.Fatalf("command %d is for %q, want %q", i, cmd.JointName, want)
		}
	}
	if q.Len() != 0 {
		t.Fatal("queue not empty after drain")
	}
	if q.Drain() != nil {
		t.Fatal("second drain should return nil")
	}
}

func TestCommandQueueDropsOldestWhenFull(t *testing.T) {
	q := newCommandQueue()
	for i := 0; i < maxQueuedCommands; i++ {
		if evicted := q.Push(NewPositionCommand("head_pan", float64(i))); evicted {
			t.Fatalf("eviction before queue was full at %d", i)
		}
	}

	if evicted := q.Push(NewPositionCommand("head_pan", 9999)); !evicted {
		t.Fatal("expected eviction when pushing past the bound")
	}
	if q.Len() != maxQueuedCommands {
		t.Fatalf("len = %d, want %d", q.Len(), maxQueuedCommands)
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", q.Dropped())
	}

	cmds := q.Drain()
	if *cmds[0].TargetPosition != 1 {
		t.Fatalf("oldest surviving target = %v, want 1 (0 should have been evicted)", *cmds[0].TargetPosition)
	}
	if *cmds[len(cmds)-1].TargetPosition != 9999 {
		t.Fatal("newest command missing after eviction")
	}
}

func TestCommandQueueRequeue(t *testing.T) {
	q := newCommandQueue()
	q.Push(NewStopCommand("a"))
	q.Push(NewStopCommand("b"))
	drained := q.Drain()

	// Something arrives between the drain and the requeue.
	q.Push(NewStopCommand("c"))
	q.requeue(drained[1:])

	cmds := q.Drain()
	if len(cmds) != 2 || cmds[0].JointName != "b" || cmds[1].JointName != "c" {
		t.Fatalf("unexpected order after requeue: %+v", cmds)
	}
}

func TestCommandTypeString(t *testing.T) {
	cases := map[CommandType]string{
		CommandPosition:      "position",
		CommandVelocity:      "velocity",
		CommandTorque:        "torque",
		CommandStop:          "stop",
		CommandEmergencyStop: "emergency_stop",
		CommandType(99):      "unknown",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}
