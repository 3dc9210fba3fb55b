package relay

import "errors"

var (
	ErrSessionClosed    = errors.New("session is closed")
	ErrSessionQueueFull = errors.New("session send queue is full")
)
