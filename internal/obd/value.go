package obd

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Unit is a canonical unit name as produced by the decoders.
//
// Compound units use the "meter / second ** 2" notation so they can be
// pretty-printed without a symbol table entry.
type Unit string

// Units produced by the built-in decoders.
const (
	UnitNone                  Unit = ""
	UnitLiter                 Unit = "liter"
	UnitAmpere                Unit = "ampere"
	UnitKilowatt              Unit = "kilowatt"
	UnitPercent               Unit = "percent"
	UnitVolt                  Unit = "volt"
	UnitRPM                   Unit = "revolutions_per_minute"
	UnitKilometerPerHour      Unit = "kilometer_per_hour"
	UnitCelsius               Unit = "degree_Celsius"
	UnitKilopascal            Unit = "kilopascal"
	UnitDegree                Unit = "degree"
	UnitDegreePerSecond       Unit = "degree / second"
	UnitMeterPerSecondSquared Unit = "meter / second ** 2"
	UnitKilometer             Unit = "kilometer"
)

// magnitudePrecision bounds rendered magnitudes to four decimal places.
const magnitudePrecision = 1e4

// unitSymbols maps whole unit names to their display symbol.
var unitSymbols = map[Unit]string{
	UnitLiter:            "L",
	UnitAmpere:           "A",
	UnitKilowatt:         "kW",
	UnitPercent:          "%",
	UnitVolt:             "V",
	UnitRPM:              "rpm",
	UnitKilometerPerHour: "km/h",
	UnitCelsius:          "°C",
	UnitKilopascal:       "kPa",
	UnitDegree:           "°",
	UnitKilometer:        "km",
}

// baseSymbols are used when pretty-printing compound units term by term.
var baseSymbols = map[string]string{
	"meter":     "m",
	"kilometer": "km",
	"second":    "s",
	"hour":      "h",
	"degree":    "°",
	"liter":     "L",
	"watt":      "W",
	"kilowatt":  "kW",
	"ampere":    "A",
	"volt":      "V",
}

var superscripts = map[string]string{
	"2": "²",
	"3": "³",
}

// Symbol returns the unit-of-measurement string for discovery metadata.
//
// Resolution order: the symbol table, then a pretty-printed rendering of a
// compound expression, then the raw unit name.
func (u Unit) Symbol() string {
	if s, ok := unitSymbols[u]; ok {
		return s
	}
	if p, ok := u.pretty(); ok {
		return p
	}
	return u.String()
}

func (u Unit) String() string {
	return string(u)
}

// pretty renders expressions like "meter / second ** 2" as "m/s²".
// It reports false when any term is unknown.
func (u Unit) pretty() (string, bool) {
	fields := strings.Fields(string(u))
	if len(fields) == 0 {
		return "", false
	}

	var b strings.Builder
	for i := 0; i < len(fields); i++ {
		switch tok := fields[i]; tok {
		case "/":
			b.WriteString("/")
		case "*":
			b.WriteString("·")
		case "**":
			if i+1 >= len(fields) {
				return "", false
			}
			sup, ok := superscripts[fields[i+1]]
			if !ok {
				return "", false
			}
			b.WriteString(sup)
			i++
		default:
			sym, ok := baseSymbols[tok]
			if !ok {
				return "", false
			}
			b.WriteString(sym)
		}
	}
	return b.String(), true
}

// Value is a decoded response. The set of implementations is closed:
// Quantity, Record and Text.
type Value interface {
	String() string
	isValue()
}

// Quantity is a scalar magnitude with a unit.
type Quantity struct {
	Magnitude float64
	Unit      Unit
}

// Q builds a Quantity.
func Q(magnitude float64, unit Unit) Quantity {
	return Quantity{Magnitude: magnitude, Unit: unit}
}

func (Quantity) isValue() {}

// FormatMagnitude renders the magnitude without unit, trimmed of float noise.
func (q Quantity) FormatMagnitude() string {
	m := math.Round(q.Magnitude*magnitudePrecision) / magnitudePrecision
	if m == 0 {
		m = 0 // normalise -0
	}
	return strconv.FormatFloat(m, 'f', -1, 64)
}

func (q Quantity) String() string {
	if q.Unit == UnitNone {
		return q.FormatMagnitude()
	}
	return q.FormatMagnitude() + " " + q.Unit.Symbol()
}

// Record holds the named sub-fields of a multi-value response.
type Record map[string]Quantity

func (Record) isValue() {}

// Field returns the named quantity.
func (r Record) Field(name string) (Quantity, bool) {
	q, ok := r[name]
	return q, ok
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Record) String() string {
	parts := make([]string, 0, len(r))
	for _, k := range r.Keys() {
		parts = append(parts, k+"="+r[k].String())
	}
	return strings.Join(parts, ", ")
}

// Text is a free-form adapter or diagnostic string.
type Text string

func (Text) isValue() {}

func (t Text) String() string {
	return string(t)
}
