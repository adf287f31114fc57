package selector

import "errors"

var (
	// ErrNoEndpoint is returned when an HTTP selector has no URL.
	ErrNoEndpoint = errors.New("selector endpoint not configured")
	// ErrUnexpectedStatus is returned for non-2xx selector responses.
	ErrUnexpectedStatus = errors.New("unexpected selector status")
	// ErrEmptyShortlist is returned when there is nothing to choose from.
	ErrEmptyShortlist = errors.New("empty shortlist")
)
