package session

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrStoreClosed          = errors.New("store is closed")
	ErrInvalidTransition    = errors.New("session: invalid state transition")
	ErrBindConflict         = errors.New("session: conflicting live binding")
)
