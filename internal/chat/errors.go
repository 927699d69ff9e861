package chat

import "errors"

// Domain errors returned by the membership and message services. The REST
// gateway maps these onto HTTP status codes.
var (
	// ErrChatNotFound is returned when the referenced chat does not exist.
	ErrChatNotFound = errors.New("chat room not found")
	// ErrAlreadyJoined is returned when joining a chat the user is
	// already a participant of.
	ErrAlreadyJoined = errors.New("already a participant in this chat")
	// ErrNotJoined is returned when leaving a chat the user is not a
	// participant of.
	ErrNotJoined = errors.New("not a participant in this chat")
	// ErrNotParticipant is returned when a non-participant attempts to
	// read or send messages.
	ErrNotParticipant = errors.New("not authorized for this chat")
	// ErrUserNotFound is returned when the referenced account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmptyContent is returned for messages whose content trims to nothing.
	ErrEmptyContent = errors.New("message content is required")
	// ErrNameRequired is returned when creating a chat without a name.
	ErrNameRequired = errors.New("chat name is required")
	// ErrInvalidKind is returned for unknown message kinds.
	ErrInvalidKind = errors.New("invalid message type")
	// ErrInvalidChatType is returned for chat types other than public and
	// private.
	ErrInvalidChatType = errors.New("invalid chat type")
)
