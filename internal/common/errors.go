package common

import (
	"errors"
	"net/http"
)

// AppError is an error that already knows how it should be rendered: a
// stable machine code, a client-facing message and the HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WriteAppError renders err when it wraps an *AppError and reports whether it
// did. A missing status defaults to 400 and a missing code to BAD_REQUEST.
func WriteAppError(w http.ResponseWriter, err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	code := appErr.Code
	if code == "" {
		code = "BAD_REQUEST"
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
	return true
}

// WriteMapped renders a domain error with a status and code chosen by the
// caller. Server errors never leak the underlying message.
func WriteMapped(w http.ResponseWriter, status int, code string, err error) {
	msg := "internal error"
	if status < http.StatusInternalServerError && err != nil {
		msg = err.Error()
	}
	JSONError(w, status, code, msg, nil)
}
