package allocation

import "errors"

var (
	// ErrInvalidInput is returned before a batch starts when its input cannot be used.
	ErrInvalidInput = errors.New("invalid batch input")
	// ErrUnknownPerson is returned by State.Fold for ids outside the batch.
	ErrUnknownPerson = errors.New("unknown person")
	// ErrSelectorFailed marks a failed or timed out selector call.
	ErrSelectorFailed = errors.New("selector failed")
	// ErrMalformedResponse marks a selector answer without a usable team.
	ErrMalformedResponse = errors.New("malformed selector response")
)
