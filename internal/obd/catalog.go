package obd

import (
	"fmt"
	"strings"
)

// Catalog is the typed, validated set of commands known to the bridge.
// It is built once at startup and read-only afterwards.
type Catalog struct {
	commands [commandCount]Command
}

// NewCatalog builds the built-in catalog.
//
// A missing or duplicated definition is a programming error; NewCatalog
// panics so the process never starts with a partial catalog.
func NewCatalog() *Catalog {
	c, err := buildCatalog(definitions())
	if err != nil {
		panic(err)
	}
	return c
}

func buildCatalog(defs []Command) (*Catalog, error) {
	c := &Catalog{}
	seen := make(map[CommandID]bool, len(defs))
	var errs []string

	for _, def := range defs {
		if !def.ID.Valid() {
			errs = append(errs, fmt.Sprintf("invalid command id %d", def.ID))
			continue
		}
		if seen[def.ID] {
			errs = append(errs, fmt.Sprintf("%s defined twice", def.ID))
			continue
		}
		seen[def.ID] = true

		def.Name = def.ID.String()
		if def.Bytes == "" {
			errs = append(errs, fmt.Sprintf("%s has no command bytes", def.Name))
		}
		if def.Decoder == nil {
			errs = append(errs, fmt.Sprintf("%s has no decoder", def.Name))
		}
		c.commands[def.ID] = def
	}

	for _, id := range AllCommandIDs() {
		if !seen[id] {
			errs = append(errs, fmt.Sprintf("%s has no definition", id))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("command catalog: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// Get returns the command for id. id must be valid.
func (c *Catalog) Get(id CommandID) Command {
	return c.commands[id]
}

// Lookup resolves a command by symbolic name.
func (c *Catalog) Lookup(name string) (Command, error) {
	id, err := ParseCommandID(name)
	if err != nil {
		return Command{}, err
	}
	return c.commands[id], nil
}

// All returns every command in identifier order.
func (c *Catalog) All() []Command {
	out := make([]Command, len(c.commands))
	copy(out, c.commands[:])
	return out
}

// definitions lists the built-in commands. Names are taken from CommandID.
func definitions() []Command {
	return []Command{
		// Adapter
		{ID: CmdElmVersion, Description: "ELM327 version string", Bytes: "ATI", Decoder: DecodeRawString, ECU: ECUUnknown},
		{ID: CmdElmVoltage, Description: "Voltage detected by OBD-II adapter", Bytes: "ATRV", Decoder: DecodeElmVoltage, ECU: ECUUnknown},

		// Mode 01
		{ID: CmdEngineLoad, Description: "Calculated Engine Load", Bytes: "0104", ResponseLen: 1, Decoder: DecodePercent, ECU: ECUEngine, Fast: true},
		{ID: CmdCoolantTemp, Description: "Engine Coolant Temperature", Bytes: "0105", ResponseLen: 1, Decoder: DecodeTemperature, ECU: ECUEngine, Fast: true},
		{ID: CmdShortFuelTrim1, Description: "Short Term Fuel Trim - Bank 1", Bytes: "0106", ResponseLen: 1, Decoder: DecodeFuelTrim, ECU: ECUEngine, Fast: true},
		{ID: CmdLongFuelTrim1, Description: "Long Term Fuel Trim - Bank 1", Bytes: "0107", ResponseLen: 1, Decoder: DecodeFuelTrim, ECU: ECUEngine, Fast: true},
		{ID: CmdFuelPressure, Description: "Fuel Pressure", Bytes: "010A", ResponseLen: 1, Decoder: DecodeFuelPressure, ECU: ECUEngine, Fast: true},
		{ID: CmdIntakePressure, Description: "Intake Manifold Pressure", Bytes: "010B", ResponseLen: 1, Decoder: DecodePressure, ECU: ECUEngine, Fast: true},
		{ID: CmdRPM, Description: "Engine RPM", Bytes: "010C", ResponseLen: 2, Decoder: DecodeRPM, ECU: ECUEngine, Fast: true},
		{ID: CmdSpeed, Description: "Vehicle Speed", Bytes: "010D", ResponseLen: 1, Decoder: DecodeSpeed, ECU: ECUEngine, Fast: true},
		{ID: CmdIntakeTemp, Description: "Intake Air Temp", Bytes: "010F", ResponseLen: 1, Decoder: DecodeTemperature, ECU: ECUEngine, Fast: true},
		{ID: CmdThrottlePos, Description: "Throttle Position", Bytes: "0111", ResponseLen: 1, Decoder: DecodePercent, ECU: ECUEngine, Fast: true},
		{ID: CmdDistanceWithMIL, Description: "Distance Traveled with MIL on", Bytes: "0121", ResponseLen: 2, Decoder: DecodeDistance, ECU: ECUEngine, Fast: true},
		{ID: CmdBarometricPressure, Description: "Barometric Pressure", Bytes: "0133", ResponseLen: 1, Decoder: DecodePressure, ECU: ECUEngine, Fast: true},
		{ID: CmdStateOfCharge, Description: "Hybrid Battery State of Charge", Bytes: "015B", ResponseLen: 1, Decoder: DecodeStateOfCharge, ECU: ECUAll, Fast: true, Header: "7E2"},

		// Vehicle specific (mode 21)
		{ID: CmdFuelLevel, Description: "Fuel Level", Bytes: "2129", ResponseLen: 1, Decoder: DecodeFuelLevel, ECU: ECUAll, Fast: true, Header: "7C0"},
		{ID: CmdHVBatteryStatus, Description: "HV Battery Status", Bytes: "2198", ResponseLen: 8, Decoder: DecodeHVBatteryStatus, ECU: ECUAll, Fast: true, Header: "7E2"},
		{ID: CmdGForceAndYaw, Description: "G-Force, Yaw and Steering Angle", Bytes: "2147", ResponseLen: 5, Decoder: DecodeGForceAndYaw, ECU: ECUAll, Fast: true, Header: "7B0"},
	}
}
