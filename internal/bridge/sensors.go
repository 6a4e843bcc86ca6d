package bridge

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// DefaultSensors builds the bridge's sensor set for nodeID.
func DefaultSensors(nodeID string, catalog *obd.Catalog) []*Sensor {
	cmd := catalog.Get

	return []*Sensor{
		// Adapter
		NewRawSensor(nodeID, "ELM_VERSION", cmd(obd.CmdElmVersion)),
		NewRawSensor(nodeID, "ELM_VOLTAGE", cmd(obd.CmdElmVoltage)),

		// Standard PIDs
		NewUnitSensor(nodeID, "RPM", cmd(obd.CmdRPM), obd.UnitRPM, ""),
		NewUnitSensor(nodeID, "SPEED", cmd(obd.CmdSpeed), obd.UnitKilometerPerHour, DeviceClassSpeed),
		NewUnitSensor(nodeID, "ENGINE_LOAD", cmd(obd.CmdEngineLoad), obd.UnitPercent, ""),
		NewUnitSensor(nodeID, "THROTTLE_POS", cmd(obd.CmdThrottlePos), obd.UnitPercent, ""),
		NewUnitSensor(nodeID, "COOLANT_TEMP", cmd(obd.CmdCoolantTemp), obd.UnitCelsius, DeviceClassTemperature),
		NewUnitSensor(nodeID, "INTAKE_TEMP", cmd(obd.CmdIntakeTemp), obd.UnitCelsius, DeviceClassTemperature),
		NewUnitSensor(nodeID, "SHORT_FUEL_TRIM_1", cmd(obd.CmdShortFuelTrim1), obd.UnitPercent, ""),
		NewUnitSensor(nodeID, "LONG_FUEL_TRIM_1", cmd(obd.CmdLongFuelTrim1), obd.UnitPercent, ""),
		NewUnitSensor(nodeID, "FUEL_PRESSURE", cmd(obd.CmdFuelPressure), obd.UnitKilopascal, DeviceClassPressure),
		NewUnitSensor(nodeID, "INTAKE_PRESSURE", cmd(obd.CmdIntakePressure), obd.UnitKilopascal, DeviceClassPressure),
		NewUnitSensor(nodeID, "BAROMETRIC_PRESSURE", cmd(obd.CmdBarometricPressure), obd.UnitKilopascal, DeviceClassPressure),
		NewUnitSensor(nodeID, "DISTANCE_W_MIL", cmd(obd.CmdDistanceWithMIL), obd.UnitKilometer, DeviceClassDistance),
		NewUnitSensor(nodeID, "STATE_OF_CHARGE", cmd(obd.CmdStateOfCharge), obd.UnitPercent, DeviceClassBattery),

		// Vehicle specific
		NewUnitSensor(nodeID, "FUEL_LEVEL", cmd(obd.CmdFuelLevel), obd.UnitLiter, DeviceClassVolume),
		NewSelectingUnitSensor(nodeID, "HV_BATTERY_CURRENT", cmd(obd.CmdHVBatteryStatus), obd.UnitAmpere, DeviceClassCurrent, Field("battery_current")),
		NewSelectingUnitSensor(nodeID, "HV_SOC_MAX", cmd(obd.CmdHVBatteryStatus), obd.UnitPercent, DeviceClassBattery, Field("soc_max")),
		NewSelectingUnitSensor(nodeID, "HV_SOC_MIN", cmd(obd.CmdHVBatteryStatus), obd.UnitPercent, DeviceClassBattery, Field("soc_min")),
		NewSelectingUnitSensor(nodeID, "YAW_RATE", cmd(obd.CmdGForceAndYaw), obd.UnitDegreePerSecond, "", Field("yaw_rate")),
		NewSelectingUnitSensor(nodeID, "STEERING_ANGLE", cmd(obd.CmdGForceAndYaw), obd.UnitDegree, "", Field("steering_angle")),
		NewRawSensor(nodeID, "GFORCE_AND_YAW", cmd(obd.CmdGForceAndYaw)),
	}
}

// SelectSensors narrows all to the watch list.
//
// Each name may be a sensor name (selecting that sensor) or a command name
// (selecting every sensor fed by that command). An empty list selects all.
// Command names are resolved through catalog. Names matching nothing fail
// with obd.ErrUnknownCommand, so a typo is caught at startup rather than
// silently watching less.
func SelectSensors(catalog *obd.Catalog, all []*Sensor, names []string) ([]*Sensor, error) {
	if len(names) == 0 {
		return all, nil
	}

	selected := make(map[*Sensor]bool, len(all))
	var unknown []string

	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		matches := lo.Filter(all, func(s *Sensor, _ int) bool {
			return s.Name() == name
		})
		if len(matches) == 0 {
			if cmd, err := catalog.Lookup(name); err == nil {
				matches = lo.Filter(all, func(s *Sensor, _ int) bool {
					return s.Command().ID == cmd.ID
				})
			}
		}
		if len(matches) == 0 {
			unknown = append(unknown, raw)
			continue
		}
		for _, s := range matches {
			selected[s] = true
		}
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", obd.ErrUnknownCommand, strings.Join(unknown, ", "))
	}

	// Keep factory order.
	return lo.Filter(all, func(s *Sensor, _ int) bool { return selected[s] }), nil
}

// FilterSupported returns the sensors whose command is in supported,
// preserving order.
func FilterSupported(sensors []*Sensor, supported []obd.CommandID) []*Sensor {
	return lo.Filter(sensors, func(s *Sensor, _ int) bool {
		return lo.Contains(supported, s.Command().ID)
	})
}

// Commands returns the distinct commands feeding sensors.
func Commands(sensors []*Sensor) []obd.CommandID {
	return lo.Uniq(lo.Map(sensors, func(s *Sensor, _ int) obd.CommandID {
		return s.Command().ID
	}))
}

// SensorNames returns the sensors' names.
func SensorNames(sensors []*Sensor) []string {
	return lo.Map(sensors, func(s *Sensor, _ int) string { return s.Name() })
}
