package influxdb

import "errors"

var (
	// ErrDisabled is returned by Open when the mirror is switched off.
	ErrDisabled = errors.New("influxdb: mirror disabled in configuration")

	// ErrUnhealthy means the server did not answer the health ping.
	ErrUnhealthy = errors.New("influxdb: server unhealthy")

	// ErrClosed is returned by operations on a closed mirror.
	ErrClosed = errors.New("influxdb: mirror closed")
)
