package dispatch

import "errors"

var (
	// ErrDeviceNotFound means the routing key resolved to no device. It is
	// surfaced to callers as a client error; nothing has been logged yet.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNoNumberConfigured means the device has no carrier-assigned number
	// and cannot send.
	ErrNoNumberConfigured = errors.New("device has no number configured")

	// ErrGatewayNotConfigured means carrier credentials are absent.
	ErrGatewayNotConfigured = errors.New("carrier gateway not configured")

	// ErrStorageUnavailable means the conversation log write failed; the
	// operation is aborted with no partial success.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSendFailed wraps a carrier rejection of an outbound message. The
	// failure has already been recorded in the conversation log.
	ErrSendFailed = errors.New("carrier send failed")
)
