package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for transport mapping and logging.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindPermissionDenied
	KindVersionConflict
	KindValidation
)

// Error is a typed application error. Anything not wrapped in one of these
// constructors is treated as an infrastructure failure by the HTTP layer.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindVersionConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NotFound covers both "does not exist" and "outside the actor's tenant".
// The two cases are deliberately indistinguishable to the caller.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// PermissionDenied is returned when the object is visible but the actor lacks
// the required tenant permission or project role. The reason is safe to show
// to actors inside the same tenant.
func PermissionDenied(reason string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: reason}
}

// Validation rejects malformed input before any state change.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// VersionConflict signals that an optimistic update lost the race: the stored
// version no longer matches what the caller last observed. Recoverable by
// reload-and-retry; never retried automatically here.
func VersionConflict(expected, current int) *Error {
	return &Error{
		Kind:    KindVersionConflict,
		Message: fmt.Sprintf("version conflict: expected %d, current %d", expected, current),
	}
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsNotFound(err error) bool         { return is(err, KindNotFound) }
func IsPermissionDenied(err error) bool { return is(err, KindPermissionDenied) }
func IsVersionConflict(err error) bool  { return is(err, KindVersionConflict) }
func IsValidation(err error) bool       { return is(err, KindValidation) }
