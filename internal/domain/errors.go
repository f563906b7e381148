package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrParentNotReady = errors.New("parent edit is not completed")
	ErrChainTooLong   = errors.New("edit chain is at maximum length")
	ErrFeedbackExists = errors.New("feedback already submitted for this edit")
	ErrInvalidPrompt  = errors.New("invalid prompt")
	ErrInvalidImage   = errors.New("invalid image payload")
	ErrInvalidRating  = errors.New("invalid feedback payload")
	ErrEditNotDone    = errors.New("edit has not completed yet")
)
