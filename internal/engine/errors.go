package engine

import (
	"errors"
	"net/http"
)

// ValidationError rejects a malformed request before any backend call.
type ValidationError struct{ msg string }

func (e ValidationError) Error() string { return e.msg }
func (e ValidationError) StatusCode() int { return http.StatusBadRequest }

// ErrValidation constructs a ValidationError.
func ErrValidation(msg string) error { return ValidationError{msg: msg} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// notImplementedError marks request options the gateway does not serve.
type notImplementedError struct{ msg string }

func (e notImplementedError) Error() string { return e.msg }
func (e notImplementedError) StatusCode() int { return http.StatusNotImplemented }

// IsNotImplemented reports whether err asks for an unsupported mode.
func IsNotImplemented(err error) bool {
	_, ok := err.(notImplementedError)
	return ok
}

// errNotLoaded is returned when the gate is open but no backend is attached.
var errNotLoaded = errors.New("model not loaded")
