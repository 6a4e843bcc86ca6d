package bridge

import (
	"fmt"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// Home Assistant device classes used by the built-in sensors.
const (
	DeviceClassBattery     = "battery"
	DeviceClassCurrent     = "current"
	DeviceClassDistance    = "distance"
	DeviceClassPressure    = "pressure"
	DeviceClassSpeed       = "speed"
	DeviceClassTemperature = "temperature"
	DeviceClassVoltage     = "voltage"
	DeviceClassVolume      = "volume_storage"
)

// Presenter decides how a sensor is described in discovery and how its
// decoded value becomes an MQTT payload.
//
// The set of presenters is closed: RawPresenter, UnitPresenter and
// SelectingPresenter.
type Presenter interface {
	configure(cfg *DiscoveryConfig)
	render(v obd.Value) (string, error)
}

// RawPresenter publishes the value's text form without unit metadata.
type RawPresenter struct{}

func (RawPresenter) configure(*DiscoveryConfig) {}

func (RawPresenter) render(v obd.Value) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: nil value", ErrRenderFailed)
	}
	return v.String(), nil
}

// UnitPresenter publishes the bare magnitude of a quantity and advertises
// its unit of measurement and optional device class.
type UnitPresenter struct {
	Unit        obd.Unit
	DeviceClass string
}

func (p UnitPresenter) configure(cfg *DiscoveryConfig) {
	cfg.UnitOfMeasurement = p.Unit.Symbol()
	cfg.DeviceClass = p.DeviceClass
}

func (p UnitPresenter) render(v obd.Value) (string, error) {
	q, ok := v.(obd.Quantity)
	if !ok {
		return "", fmt.Errorf("%w: expected quantity, got %T", ErrRenderFailed, v)
	}
	return p.renderQuantity(q)
}

func (p UnitPresenter) renderQuantity(q obd.Quantity) (string, error) {
	if q.Unit != p.Unit {
		return "", fmt.Errorf("%w: value in %q, sensor advertises %q", ErrRenderFailed, q.Unit, p.Unit)
	}
	return q.FormatMagnitude(), nil
}

// Selector extracts one quantity from a composite value.
type Selector func(obd.Value) (obd.Quantity, error)

// Field selects a named field of a Record.
func Field(name string) Selector {
	return func(v obd.Value) (obd.Quantity, error) {
		rec, ok := v.(obd.Record)
		if !ok {
			return obd.Quantity{}, fmt.Errorf("%w: expected record, got %T", ErrRenderFailed, v)
		}
		q, ok := rec.Field(name)
		if !ok {
			return obd.Quantity{}, fmt.Errorf("%w: record has no field %q", ErrRenderFailed, name)
		}
		return q, nil
	}
}

// SelectingPresenter is a UnitPresenter applied to one field of a
// composite value.
type SelectingPresenter struct {
	UnitPresenter
	Select Selector
}

func (p SelectingPresenter) render(v obd.Value) (string, error) {
	q, err := p.Select(v)
	if err != nil {
		return "", err
	}
	return p.renderQuantity(q)
}
