package elm327

import "errors"

// Adapter errors. Bus-level failures wrap the obd sentinels instead
// (obd.ErrNoData, obd.ErrTimeout, obd.ErrConnectionFailed) so callers can
// treat every adapter implementation alike.
var (
	// ErrUnsupportedDevice is returned for device URLs with an unknown scheme.
	ErrUnsupportedDevice = errors.New("elm327: unsupported device")

	// ErrUnexpectedResponse is returned when a reply cannot be parsed or
	// does not answer the request that was sent.
	ErrUnexpectedResponse = errors.New("elm327: unexpected response")

	// ErrStopped is returned by operations on a stopped adapter.
	ErrStopped = errors.New("elm327: adapter stopped")
)
