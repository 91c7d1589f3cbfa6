package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.viam.com/rdk/logging"

	"humanoid"
)

func main() {
	if err := realMain(); err != nil {
		logging.NewLogger("humanoid-cli").Fatal(err)
	}
}

func realMain() error {
	var (
		configPath = flag.String("config", "", "path to a JSON realtime config (defaults used when empty)")
		port       = flag.String("port", "", "serial port of a servo bus (simulated hardware when empty)")
		discover   = flag.Bool("discover", false, "scan serial ports for servo buses and exit")
	)
	flag.Parse()

	logger := logging.NewLogger("humanoid-cli")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *discover {
		buses, err := humanoid.DiscoverBuses(ctx, logger)
		if err != nil {
			return err
		}
		for _, bus := range buses {
			logger.Infof("bus: %s", bus)
		}
		return nil
	}

	cfg := humanoid.DefaultConfig()
	if *configPath != "" {
		loaded, err := humanoid.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	var hw humanoid.Hardware
	if *port != "" {
		servoIDs := map[string]int{
			"head_pan": 1, "head_tilt": 2,
			"left_shoulder_pitch": 3, "left_shoulder_roll": 4, "left_elbow_pitch": 5,
			"right_shoulder_pitch": 6, "right_shoulder_roll": 7, "right_elbow_pitch": 8,
		}
		bus, err := humanoid.NewFeetechBus(*port, 0, servoIDs, logger)
		if err != nil {
			return err
		}
		defer bus.Close()
		hw = bus
	} else {
		logger.Info("no serial port given, running against simulated hardware")
		hw = humanoid.NewSimulatedHardware(cfg)
	}

	rc, err := humanoid.NewRealtimeController(cfg, hw, logger)
	if err != nil {
		return err
	}
	if err := rc.Start(); err != nil {
		return err
	}
	defer rc.Stop()

	// Nod the head and swing both elbows, then hold until interrupted.
	moves := []humanoid.MotionCommand{
		humanoid.NewPositionCommand("head_pan", 0.8),
		humanoid.NewPositionCommand("head_tilt", -0.3),
		humanoid.NewPositionCommand("left_elbow_pitch", 1.2),
		humanoid.NewPositionCommand("right_elbow_pitch", -1.2),
	}
	for _, cmd := range moves {
		if err := rc.AddCommand(cmd); err != nil {
			return err
		}
	}

	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-statusTicker.C:
			st := rc.Status()
			logger.Infof("control %.1f Hz, sensors %.1f Hz, %d active trajectories, avg tick %v",
				st.ControlLoopFrequency, st.SensorUpdateFrequency,
				st.ActiveTrajectories, st.PerformanceStats.AvgTickDuration)
			if pan, ok := st.JointStates["head_pan"]; ok {
				logger.Debugf("head_pan at %.3f rad (moving: %v)", pan.Position, pan.IsMoving)
			}
		}
	}
}
