package transport

import "errors"

var (
	ErrSocketClosed   = errors.New("transport: socket closed")
	ErrInvalidAddress = errors.New("transport: invalid address")
	ErrWriteFailed    = errors.New("transport: write failed")
)
