package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Conversation errors
	ErrEmptySend              = errors.New("nothing to send")
	ErrSendInFlight           = errors.New("a send is already in flight")
	ErrMissingSubject         = errors.New("missing conversation subject")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrPaywall                = errors.New("insufficient credits for this action")
	ErrStaleSend              = errors.New("conversation subject changed during send")

	// Selection errors
	ErrSelectionLimit = errors.New("selection limit reached")

	// Rate limiting
	ErrRateLimited = errors.New("too many requests")
)
