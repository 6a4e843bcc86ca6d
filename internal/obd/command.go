package obd

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandID identifies a diagnostic command in the catalog.
type CommandID int

// Catalog command identifiers. Every identifier must have exactly one
// definition in the catalog; NewCatalog enforces this.
const (
	CmdElmVersion CommandID = iota
	CmdElmVoltage
	CmdEngineLoad
	CmdCoolantTemp
	CmdShortFuelTrim1
	CmdLongFuelTrim1
	CmdFuelPressure
	CmdIntakePressure
	CmdRPM
	CmdSpeed
	CmdIntakeTemp
	CmdThrottlePos
	CmdDistanceWithMIL
	CmdBarometricPressure
	CmdStateOfCharge
	CmdFuelLevel
	CmdHVBatteryStatus
	CmdGForceAndYaw

	commandCount
)

var commandNames = [commandCount]string{
	CmdElmVersion:             "ELM_VERSION",
	CmdElmVoltage:             "ELM_VOLTAGE",
	CmdEngineLoad:             "ENGINE_LOAD",
	CmdCoolantTemp:            "COOLANT_TEMP",
	CmdShortFuelTrim1:         "SHORT_FUEL_TRIM_1",
	CmdLongFuelTrim1:          "LONG_FUEL_TRIM_1",
	CmdFuelPressure:           "FUEL_PRESSURE",
	CmdIntakePressure:         "INTAKE_PRESSURE",
	CmdRPM:                    "RPM",
	CmdSpeed:                  "SPEED",
	CmdIntakeTemp:             "INTAKE_TEMP",
	CmdThrottlePos:            "THROTTLE_POS",
	CmdDistanceWithMIL:        "DISTANCE_W_MIL",
	CmdBarometricPressure:     "BAROMETRIC_PRESSURE",
	CmdStateOfCharge:          "STATE_OF_CHARGE",
	CmdFuelLevel:              "FUEL_LEVEL",
	CmdHVBatteryStatus:        "HV_BATTERY_STATUS",
	CmdGForceAndYaw:           "GFORCE_AND_YAW",
}

var commandsByName = func() map[string]CommandID {
	m := make(map[string]CommandID, commandCount)
	for id, name := range commandNames {
		m[name] = CommandID(id)
	}
	return m
}()

// String returns the symbolic command name.
func (id CommandID) String() string {
	if !id.Valid() {
		return "CommandID(" + strconv.Itoa(int(id)) + ")"
	}
	return commandNames[id]
}

// Valid reports whether id names a catalog command.
func (id CommandID) Valid() bool {
	return id >= 0 && id < commandCount
}

// ParseCommandID resolves a symbolic command name (case-insensitive).
func ParseCommandID(name string) (CommandID, error) {
	id, ok := commandsByName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return id, nil
}

// AllCommandIDs returns every catalog identifier in declaration order.
func AllCommandIDs() []CommandID {
	ids := make([]CommandID, commandCount)
	for i := range ids {
		ids[i] = CommandID(i)
	}
	return ids
}

// ECU selects which control units' responses are accepted.
type ECU uint8

// ECU selectors.
const (
	ECUUnknown ECU = 0
	ECUEngine  ECU = 1 << 0
	ECUAll     ECU = 0xFF
)

// Command is an immutable diagnostic command definition.
type Command struct {
	ID          CommandID
	Name        string
	Description string

	// Bytes is the request as sent to the adapter, e.g. "010C", "2198" or "ATRV".
	Bytes string

	// ResponseLen is the number of data bytes expected after the 2-byte prefix.
	ResponseLen int

	Decoder Decoder
	ECU     ECU

	// Fast lets the adapter return after the expected number of frames
	// instead of waiting for its response timeout.
	Fast bool

	// Header is the CAN request header ("7E2"). Empty means the adapter default.
	Header string
}

// IsAdapterCommand reports whether the command is answered by the adapter
// itself rather than by a vehicle ECU.
func (c Command) IsAdapterCommand() bool {
	return strings.HasPrefix(strings.ToUpper(c.Bytes), "AT")
}

// Mode returns the service byte of a bus command.
func (c Command) Mode() (byte, bool) {
	return c.hexByte(0)
}

// PID returns the parameter byte of a bus command.
func (c Command) PID() (byte, bool) {
	return c.hexByte(1)
}

func (c Command) hexByte(i int) (byte, bool) {
	if c.IsAdapterCommand() || len(c.Bytes) < (i+1)*2 {
		return 0, false
	}
	v, err := strconv.ParseUint(c.Bytes[i*2:i*2+2], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// Decode runs the command's decoder on a response payload.
func (c Command) Decode(payload []byte) (Value, error) {
	if c.Decoder == nil {
		return nil, fmt.Errorf("%w: %s has no decoder", ErrDecodingFailed, c.Name)
	}
	return c.Decoder(payload)
}

func (c Command) String() string {
	if c.Header == "" {
		return c.Name + " (" + c.Bytes + ")"
	}
	return c.Name + " (" + c.Header + ":" + c.Bytes + ")"
}
