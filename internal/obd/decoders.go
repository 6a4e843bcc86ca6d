package obd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Decoder converts the full payload of a response into a Value.
// Decoders are pure functions of their input.
type Decoder func(payload []byte) (Value, error)

// Framing and scaling constants shared by the decoders.
const (
	// prefixLen is the service echo plus PID echo at the start of every
	// bus response payload.
	prefixLen = 2

	byteShift = 256

	// hvCurrentOffset centres the signed 16-bit HV battery current.
	hvCurrentOffset = 327.68

	// controlOffset centres the charge/discharge power limits.
	controlOffset = 64

	// accelScale and accelOffset map a raw byte onto ±2.5 g in m/s².
	accelScale  = 50.02 / 255
	accelOffset = 25.11

	yawOffset      = 128
	steeringOffset = 3276.8

	// socScale maps the raw state of charge byte onto 0-100 %.
	socScale = 20.0 / 51.0

	tempOffset      = 40
	fuelTrimCentre  = 128
	fuelPressureMul = 3
)

// frameData returns the n data bytes following the 2-byte prefix.
func frameData(payload []byte, n int) ([]byte, error) {
	if len(payload) < prefixLen+n {
		return nil, fmt.Errorf("%w: need %d data bytes after %d-byte prefix, got %d bytes",
			ErrDecodingFailed, n, prefixLen, len(payload))
	}
	return payload[prefixLen : prefixLen+n], nil
}

func word(hi, lo byte) float64 {
	return float64(hi)*byteShift + float64(lo)
}

// DecodeFuelLevel decodes the fuel tank level: A/2 litres.
func DecodeFuelLevel(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0])/2, UnitLiter), nil
}

// DecodeHVBatteryStatus decodes the hybrid battery status block.
//
//	battery_current   (A*256+B)/100 - 327.68  A
//	charge_control    C/2 - 64                kW
//	discharge_control D/2 - 64                kW
//	delta_soc         E/2                     %
//	soc_ign           F/2                     %
//	soc_max           G/2                     %
//	soc_min           H/2                     %
func DecodeHVBatteryStatus(payload []byte) (Value, error) {
	d, err := frameData(payload, 8)
	if err != nil {
		return nil, err
	}
	return Record{
		"battery_current":   Q(word(d[0], d[1])/100-hvCurrentOffset, UnitAmpere),
		"charge_control":    Q(float64(d[2])/2-controlOffset, UnitKilowatt),
		"discharge_control": Q(float64(d[3])/2-controlOffset, UnitKilowatt),
		"delta_soc":         Q(float64(d[4])/2, UnitPercent),
		"soc_ign":           Q(float64(d[5])/2, UnitPercent),
		"soc_max":           Q(float64(d[6])/2, UnitPercent),
		"soc_min":           Q(float64(d[7])/2, UnitPercent),
	}, nil
}

// DecodeGForceAndYaw decodes the chassis motion block from the skid control ECU.
func DecodeGForceAndYaw(payload []byte) (Value, error) {
	d, err := frameData(payload, 5)
	if err != nil {
		return nil, err
	}
	return Record{
		"lateral_g":      Q(float64(d[0])*accelScale-accelOffset, UnitMeterPerSecondSquared),
		"lineal_g":       Q(float64(d[1])*accelScale-accelOffset, UnitMeterPerSecondSquared),
		"yaw_rate":       Q(float64(d[2])-yawOffset, UnitDegreePerSecond),
		"steering_angle": Q(word(d[3], d[4])/10-steeringOffset, UnitDegree),
	}, nil
}

// DecodeStateOfCharge decodes the hybrid battery state of charge: A*20/51 %.
func DecodeStateOfCharge(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0])*socScale, UnitPercent), nil
}

// DecodeRPM decodes engine speed: (A*256+B)/4.
func DecodeRPM(payload []byte) (Value, error) {
	d, err := frameData(payload, 2)
	if err != nil {
		return nil, err
	}
	return Q(word(d[0], d[1])/4, UnitRPM), nil
}

// DecodeSpeed decodes vehicle speed: A km/h.
func DecodeSpeed(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0]), UnitKilometerPerHour), nil
}

// DecodeTemperature decodes coolant and intake air temperature: A-40 °C.
func DecodeTemperature(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0])-tempOffset, UnitCelsius), nil
}

// DecodePercent decodes engine load and throttle position: A*100/255 %.
func DecodePercent(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0])*100/255, UnitPercent), nil
}

// DecodePressure decodes intake manifold and barometric pressure: A kPa.
func DecodePressure(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0]), UnitKilopascal), nil
}

// DecodeFuelPressure decodes fuel rail gauge pressure: A*3 kPa.
func DecodeFuelPressure(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q(float64(d[0])*fuelPressureMul, UnitKilopascal), nil
}

// DecodeFuelTrim decodes short and long term fuel trims: (A-128)*100/128 %.
func DecodeFuelTrim(payload []byte) (Value, error) {
	d, err := frameData(payload, 1)
	if err != nil {
		return nil, err
	}
	return Q((float64(d[0])-fuelTrimCentre)*100/fuelTrimCentre, UnitPercent), nil
}

// DecodeDistance decodes the distance travelled with the MIL on: A*256+B km.
func DecodeDistance(payload []byte) (Value, error) {
	d, err := frameData(payload, 2)
	if err != nil {
		return nil, err
	}
	return Q(word(d[0], d[1]), UnitKilometer), nil
}

// DecodeElmVoltage parses the adapter's ATRV reply ("12.6V").
func DecodeElmVoltage(payload []byte) (Value, error) {
	s := strings.TrimSpace(string(payload))
	s = strings.TrimSuffix(strings.ToUpper(s), "V")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: voltage %q: %w", ErrDecodingFailed, string(payload), err)
	}
	return Q(v, UnitVolt), nil
}

// DecodeRawString renders a payload as text: printable ASCII is kept as is,
// anything else is hex encoded.
func DecodeRawString(payload []byte) (Value, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecodingFailed)
	}
	if isPrintable(payload) {
		return Text(strings.TrimSpace(string(payload))), nil
	}
	return Text(hex.EncodeToString(payload)), nil
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c > unicode.MaxASCII || (!unicode.IsPrint(rune(c)) && !unicode.IsSpace(rune(c))) {
			return false
		}
	}
	return true
}
