package mqtt

import "errors"

// Sentinel errors. Callers match them with errors.Is; the bridge treats
// connection and publish failures as transient and never fatal.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker, timeout and size failures of a single
	// publish. The value is dropped; there is no retry queue.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic covers empty topics and, for publishing, topics with
	// the '+' or '#' wildcards. Discovery and state topics are built from
	// configured prefixes and node ids, so this catches a bad config early.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
