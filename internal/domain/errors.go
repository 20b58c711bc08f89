package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyBook      = errors.New("empty book side")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrProtocol       = errors.New("market data protocol error")
	ErrSequenceGap    = errors.New("depth update sequence gap")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrNotConnected   = errors.New("not connected")
	ErrMissingKey     = errors.New("missing config key")
	ErrMalformedValue = errors.New("malformed config value")
)
