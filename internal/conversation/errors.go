package conversation

import "errors"

var (
	// ErrInvalidMessage is returned when an inbound message is empty or too long
	ErrInvalidMessage = errors.New("conversation: invalid message")

	// ErrTurnInProgress is returned when another turn for the session is still running
	ErrTurnInProgress = errors.New("conversation: a reply is already in progress for this session")

	// ErrInvalidSessionID is returned for malformed client-supplied session ids
	ErrInvalidSessionID = errors.New("conversation: invalid session id")
)
