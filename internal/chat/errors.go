package chat

import "errors"

var (
	// ErrUnauthorized: the actor is not a participant of the target
	// conversation, or not the message's author.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound: the referenced conversation or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState: the operation is not valid for the message's current
	// state, e.g. editing a deleted message.
	ErrInvalidState = errors.New("invalid state")

	// ErrPersistence: the store failed. The operation is not retried and no
	// broadcast is emitted for state that was not durably recorded.
	ErrPersistence = errors.New("persistence failure")
)
