package service

import "errors"

var (
	// ErrNotStarted is returned by operations that need Start first.
	ErrNotStarted = errors.New("service not started")
	// ErrBackpressure is returned when the interaction queue is full.
	ErrBackpressure = errors.New("interaction queue full")
)
