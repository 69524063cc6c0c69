// Package apperr defines the HTTP-facing error types returned by handlers.
package apperr

import (
	"fmt"
	"net/http"
)

// Error carries the status code and the message rendered in the response envelope.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Msg)
}

func New(status int, msg string) *Error {
	return &Error{Status: status, Msg: msg}
}

func BadRequest(msg string) *Error {
	return New(http.StatusBadRequest, msg)
}

func Unauthenticated(msg string) *Error {
	if msg == "" {
		msg = "Authentication invalid"
	}
	return New(http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = "Not authorized to perform this action"
	}
	return New(http.StatusForbidden, msg)
}

func NotFound(msg string) *Error {
	return New(http.StatusNotFound, msg)
}

// NoItem is the not-found message used for unknown or malformed ids.
func NoItem(id string) *Error {
	return NotFound(fmt.Sprintf("No item found with id : %s", id))
}

func Conflict(msg string) *Error {
	return New(http.StatusConflict, msg)
}

func TooManyRequests() *Error {
	return New(http.StatusTooManyRequests, "Too many requests, please try again later")
}

func Internal() *Error {
	return New(http.StatusInternalServerError, "Something went wrong, try again later")
}

func Unavailable(msg string) *Error {
	return New(http.StatusServiceUnavailable, msg)
}
