package qos

import "errors"

var (
	ErrPacketIDNotFound = errors.New("packet ID not found")
	ErrQueueFull        = errors.New("message queue is full")
)
