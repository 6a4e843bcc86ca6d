package obd

import (
	"context"
	"time"
)

// Status is the health of a diagnostic connection.
type Status int

// Connection health states, ordered from worst to best.
const (
	// StatusNotConnected means the adapter is not reachable.
	StatusNotConnected Status = iota

	// StatusELMConnected means the adapter answers but the vehicle bus is
	// not established (ignition off, unsupported protocol).
	StatusELMConnected

	// StatusCarConnected means the vehicle bus answers requests.
	StatusCarConnected
)

func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "not_connected"
	case StatusELMConnected:
		return "elm_connected"
	case StatusCarConnected:
		return "car_connected"
	default:
		return "unknown"
	}
}

// Response is a single answer to a watched command.
type Response struct {
	Command Command

	// Payload is the full message payload including the 2-byte prefix for
	// bus commands, or the adapter's text reply for AT commands.
	Payload []byte

	Time time.Time
}

// Callback receives responses for a watched command. Callbacks may run
// concurrently with each other and with Status checks.
type Callback func(Response)

// Connection is an asynchronous diagnostic connection.
//
// A connection is used for a single lifecycle: Connect, Watch (any number
// of times), Start, then Stop. After Stop a new Connection must be created.
type Connection interface {
	// Connect opens the adapter and establishes the vehicle bus.
	Connect(ctx context.Context) error

	// Status performs a health check. An error means the check itself could
	// not be carried out and must be treated as unhealthy.
	Status(ctx context.Context) (Status, error)

	// Supported returns the commands the vehicle and adapter answer.
	Supported() []CommandID

	// Watch registers cb for responses to cmd. Must be called before Start.
	Watch(cmd Command, cb Callback)

	// Start begins delivering responses to watchers.
	Start()

	// Stop halts delivery and releases the adapter.
	Stop() error
}

// Dialer creates a fresh, unconnected Connection.
type Dialer func() Connection
