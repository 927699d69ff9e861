package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/termchat/termchat/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

// NewValidationError is a bad request carrying a client-facing reason.
func NewValidationError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    message,
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// chatError translates chat service errors into API responses. Unknown
// errors become internal server errors with the cause preserved for
// logging.
func chatError(err error) *ApiError {
	switch {
	case errors.Is(err, chat.ErrChatNotFound), errors.Is(err, chat.ErrUserNotFound):
		return NewNotFoundError()
	case errors.Is(err, chat.ErrAlreadyJoined),
		errors.Is(err, chat.ErrNotJoined),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrNameRequired),
		errors.Is(err, chat.ErrInvalidKind),
		errors.Is(err, chat.ErrInvalidChatType):
		return NewValidationError(err.Error())
	case errors.Is(err, chat.ErrNotParticipant):
		return NewForbiddenError(err.Error())
	default:
		return NewInternalServerError(err)
	}
}
