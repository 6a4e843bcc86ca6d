package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrRenderFailed is returned when a decoded value does not fit the
	// sensor's presentation (wrong shape, wrong unit, missing field).
	ErrRenderFailed = errors.New("bridge: render failed")

	// ErrDiscoveryFailed is returned when a discovery config cannot be
	// serialised or published.
	ErrDiscoveryFailed = errors.New("bridge: discovery publish failed")

	// ErrAlreadyRunning is returned when Run is called on a supervisor
	// that is already running or has stopped.
	ErrAlreadyRunning = errors.New("bridge: supervisor already started")
)
