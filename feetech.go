package humanoid

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// Feetech SCS/STS protocol constants.
const (
	feetechFrameHeader = 0xFF
	feetechBroadcastID = 0xFE

	instPing  = 0x01
	instRead  = 0x02
	instWrite = 0x03

	addrTorqueEnable    = 0x28
	addrGoalPosition    = 0x2A
	addrMovingSpeed     = 0x2E
	addrPresentPosition = 0x38
	addrPresentSpeed    = 0x3A
	addrPresentLoad     = 0x3C
	addrPresentTemp     = 0x3F

	defaultBaudrate = 1000000
	protocolTimeout = 100 * time.Millisecond

	// STS3215: 4096 counts per revolution, center at 2048.
	countsPerRev   = 4096.0
	centerPosition = 2048.0
)

// FeetechBus is a Hardware implementation speaking the Feetech serial servo
// protocol. Joint names map to servo IDs at construction; efforts are sent as
// signed wheel-mode speeds and never retried — failed writes are logged and
// forgotten, failed reads surface to the caller who keeps its last snapshot.
type FeetechBus struct {
	mu     sync.Mutex
	port   serial.Port
	logger logging.Logger

	portName string
	servoIDs map[string]int

	// last successfully read position per joint, used to derive velocity when
	// the servo's speed register is unreadable.
	lastPos  map[string]float64
	lastRead time.Time
}

// NewFeetechBus opens the serial port and verifies each mapped servo
// responds to a ping. Unresponsive servos are logged, not fatal: the bus
// tolerates joints coming up late.
func NewFeetechBus(portName string, baudrate int, servoIDs map[string]int, logger logging.Logger) (*FeetechBus, error) {
	if portName == "" {
		return nil, errors.New("serial port is required")
	}
	if len(servoIDs) == 0 {
		return nil, errors.New("at least one joint to servo ID mapping is required")
	}
	if baudrate <= 0 {
		baudrate = defaultBaudrate
	}

	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudrate})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}
	if err := port.SetReadTimeout(protocolTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to set read timeout")
	}

	bus := &FeetechBus{
		port:     port,
		logger:   logger,
		portName: portName,
		servoIDs: servoIDs,
		lastPos:  make(map[string]float64, len(servoIDs)),
	}

	for joint, id := range servoIDs {
		if err := bus.ping(id); err != nil {
			logger.Warnf("servo %d (joint %q) did not answer ping: %v", id, joint, err)
		}
	}
	for _, id := range servoIDs {
		if err := bus.writeRegister(id, addrTorqueEnable, []byte{1}); err != nil {
			logger.Warnf("failed to enable torque on servo %d: %v", id, err)
		}
	}

	logger.Infof("feetech bus open on %s at %d baud, %d joints", portName, baudrate, len(servoIDs))
	return bus, nil
}

// ReadState polls every servo and assembles a sensor snapshot. Joints whose
// servo fails to answer keep their previous position; an error is returned
// only when no servo answered at all.
func (b *FeetechBus) ReadState() (SensorData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	dt := now.Sub(b.lastRead).Seconds()
	b.lastRead = now

	states := make(map[string]JointState, len(b.servoIDs))
	anyOK := false
	for joint, id := range b.servoIDs {
		pos, err := b.readPosition(id)
		if err != nil {
			b.logger.Debugf("servo %d (joint %q) position read failed: %v", id, joint, err)
			pos = b.lastPos[joint]
		} else {
			anyOK = true
		}

		velocity := 0.0
		if dt > 0 {
			velocity = (pos - b.lastPos[joint]) / dt
		}
		b.lastPos[joint] = pos

		js := JointState{
			Name:     joint,
			Position: pos,
			Velocity: velocity,
			IsMoving: math.Abs(velocity) > 1e-3,
		}
		if load, err := b.readRegister16(id, addrPresentLoad); err == nil {
			js.Effort = signMagnitude(load) / 1000.0
		}
		if raw, err := b.readRegister(id, addrPresentTemp, 1); err == nil && len(raw) == 1 {
			temp := float64(raw[0])
			js.Temperature = &temp
		}
		states[joint] = js
	}

	if !anyOK {
		return SensorData{}, errors.Errorf("no servo on %s answered", b.portName)
	}
	return SensorData{JointStates: states, Timestamp: now}, nil
}

// WriteEffort sends the control effort as a signed wheel-mode speed.
// Fire-and-forget: a write failure is logged and dropped.
func (b *FeetechBus) WriteEffort(joint string, effort float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.servoIDs[joint]
	if !ok {
		return
	}

	// rad/s to counts/s, sign-magnitude with the direction bit at 15.
	speed := effort * countsPerRev / (2 * math.Pi)
	magnitude := uint16(clamp(math.Abs(speed), 0, 1023))
	value := magnitude
	if speed < 0 {
		value |= 1 << 15
	}

	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	if err := b.writeRegister(id, addrMovingSpeed, buf); err != nil {
		b.logger.Debugf("effort write to servo %d (joint %q) failed: %v", id, joint, err)
	}
}

// Close disables torque on every servo and releases the port.
func (b *FeetechBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return nil
	}
	for _, id := range b.servoIDs {
		if err := b.writeRegister(id, addrTorqueEnable, []byte{0}); err != nil {
			b.logger.Warnf("failed to disable torque on servo %d: %v", id, err)
		}
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (b *FeetechBus) readPosition(id int) (float64, error) {
	raw, err := b.readRegister16(id, addrPresentPosition)
	if err != nil {
		return 0, err
	}
	return (float64(raw) - centerPosition) / countsPerRev * 2 * math.Pi, nil
}

func (b *FeetechBus) ping(id int) error {
	_, err := b.transact(id, instPing, nil)
	return err
}

func (b *FeetechBus) writeRegister(id, address int, data []byte) error {
	params := append([]byte{byte(address)}, data...)
	_, err := b.transact(id, instWrite, params)
	return err
}

func (b *FeetechBus) readRegister(id, address, length int) ([]byte, error) {
	resp, err := b.transact(id, instRead, []byte{byte(address), byte(length)})
	if err != nil {
		return nil, err
	}
	if len(resp) < 6 {
		return nil, errors.New("short response")
	}
	dataLen := int(resp[3]) - 2
	if dataLen <= 0 || len(resp) < 5+dataLen {
		return nil, errors.New("invalid data length in response")
	}
	return resp[5 : 5+dataLen], nil
}

func (b *FeetechBus) readRegister16(id, address int) (uint16, error) {
	data, err := b.readRegister(id, address, 2)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, errors.New("insufficient register data")
	}
	return binary.LittleEndian.Uint16(data), nil
}

// transact sends one instruction packet and reads the status packet back.
// Packet layout: [0xFF 0xFF id length instruction params... checksum].
func (b *FeetechBus) transact(id int, instruction byte, params []byte) ([]byte, error) {
	if b.port == nil {
		return nil, errors.New("serial port closed")
	}

	length := len(params) + 2
	packet := make([]byte, 0, 6+len(params))
	packet = append(packet, feetechFrameHeader, feetechFrameHeader)
	packet = append(packet, byte(id), byte(length), instruction)
	packet = append(packet, params...)

	var checksum byte
	for _, v := range packet[2:] {
		checksum += v
	}
	packet = append(packet, ^checksum)

	if _, err := b.port.Write(packet); err != nil {
		return nil, errors.Wrap(err, "serial write failed")
	}

	if id == feetechBroadcastID {
		return nil, nil
	}

	resp := make([]byte, 64)
	n, err := b.port.Read(resp)
	if err != nil {
		return nil, errors.Wrap(err, "serial read failed")
	}
	if n == 0 {
		return nil, errors.Errorf("servo %d did not respond", id)
	}
	return resp[:n], nil
}

// signMagnitude decodes the servo's sign-magnitude 16-bit encoding.
func signMagnitude(v uint16) float64 {
	if v&(1<<15) != 0 {
		return -float64(v &^ (1 << 15))
	}
	return float64(v)
}
