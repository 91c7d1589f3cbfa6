package humanoid

import (
	"context"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
)

// DiscoverBuses scans the host's serial ports for servo buses: it enumerates
// ports, filters to the naming patterns USB servo adapters show up under,
// and probes each candidate with a broadcast-free ping of servo ID 1.
func DiscoverBuses(ctx context.Context, logger logging.Logger) ([]string, error) {
	allPorts := enumerateSerialPorts(logger)
	logger.Debugf("found %d serial ports", len(allPorts))

	candidates := filterCandidatePorts(allPorts)
	logger.Debugf("filtered to %d candidate ports", len(candidates))

	var buses []string
	for _, port := range candidates {
		select {
		case <-ctx.Done():
			return buses, ctx.Err()
		default:
		}
		if probePort(port, logger) {
			logger.Infof("servo bus detected on %s", port)
			buses = append(buses, port)
		}
	}

	if len(buses) == 0 {
		logger.Info("no servo buses discovered")
	}
	return buses, nil
}

func enumerateSerialPorts(logger logging.Logger) []string {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Warnf("serial port enumeration failed: %v", err)
		return nil
	}
	ports := make([]string, 0, len(details))
	for _, d := range details {
		ports = append(ports, d.Name)
	}
	return ports
}

func filterCandidatePorts(ports []string) []string {
	var candidates []string
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort matches the platform naming patterns USB serial adapters
// appear under.
func isCandidatePort(port string) bool {
	// Linux
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") ||
		strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows
	return strings.HasPrefix(port, "COM")
}

// probePort opens the port briefly and pings servo ID 1.
func probePort(portName string, logger logging.Logger) bool {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: defaultBaudrate})
	if err != nil {
		logger.Debugf("failed to open %s: %v", portName, err)
		return false
	}
	defer port.Close()

	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		return false
	}

	bus := &FeetechBus{
		port:     port,
		logger:   logger,
		portName: portName,
		servoIDs: map[string]int{},
		lastPos:  map[string]float64{},
	}
	return bus.ping(1) == nil
}
