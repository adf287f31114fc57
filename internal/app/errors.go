package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrInvalidRequest = errors.New("invalid request")
	ErrBatchTooLarge  = errors.New("batch too large")
	ErrBusy           = errors.New("batch queue full")
	ErrJobNotFound    = errors.New("batch not found")
)
