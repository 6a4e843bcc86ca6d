package obd

import "errors"

// Domain errors for the OBD package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDecodingFailed is returned when a response payload cannot be
	// converted to a value (short frame, malformed text).
	ErrDecodingFailed = errors.New("obd: decoding failed")

	// ErrUnknownCommand is returned when a configured command name does not
	// exist in the catalog. It is a configuration error and is fatal at startup.
	ErrUnknownCommand = errors.New("obd: unknown command")

	// ErrConnectionFailed is returned when the adapter cannot be reached or
	// the vehicle bus cannot be initialised.
	ErrConnectionFailed = errors.New("obd: connection failed")

	// ErrNotConnected is returned when an operation requires an open adapter.
	ErrNotConnected = errors.New("obd: not connected")

	// ErrNoData is returned when the adapter answers a query without data
	// ("NO DATA", "?", bus errors).
	ErrNoData = errors.New("obd: no data")

	// ErrTimeout is returned when the adapter does not answer in time.
	ErrTimeout = errors.New("obd: operation timed out")
)

// IsConfigurationError reports whether err stems from invalid configuration
// rather than from the runtime environment.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownCommand)
}
