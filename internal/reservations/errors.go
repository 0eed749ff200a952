package reservations

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies reservation failures for callers and the HTTP layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalid
	KindSeatConflict
	KindCapacityExceeded
	KindNotFound
	KindForbidden
	KindBusy
	KindUnavailable
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalid:
		return "INVALID"
	case KindSeatConflict:
		return "SEAT_CONFLICT"
	case KindCapacityExceeded:
		return "CAPACITY_EXCEEDED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindBusy:
		return "BUSY"
	case KindUnavailable:
		return "UNAVAILABLE"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Error is a classified reservation error. Sentinels below are compared with errors.Is.
type Error struct {
	kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind reports the class of the error.
func (e *Error) Kind() ErrorKind { return e.kind }

var (
	ErrInvalidQuantity   = &Error{kind: KindInvalid, msg: "quantity must be a positive integer within slot capacity"}
	ErrSeatMismatch      = &Error{kind: KindInvalid, msg: "explicit seats do not match the requested quantity"}
	ErrUnknownSeat       = &Error{kind: KindInvalid, msg: "seat does not exist in slot"}
	ErrInvalidSlot       = &Error{kind: KindInvalid, msg: "invalid slot definition"}
	ErrInvalidTransition = &Error{kind: KindInvalid, msg: "invalid status transition"}
	ErrKeyCancelled      = &Error{kind: KindInvalid, msg: "idempotency key already used by a cancelled booking"}

	ErrSeatConflict     = &Error{kind: KindSeatConflict, msg: "seat already booked"}
	ErrCapacityExceeded = &Error{kind: KindCapacityExceeded, msg: "slot capacity exceeded"}

	ErrSlotNotFound    = &Error{kind: KindNotFound, msg: "slot not found"}
	ErrBookingNotFound = &Error{kind: KindNotFound, msg: "booking not found"}
	ErrEntryNotFound   = &Error{kind: KindNotFound, msg: "waitlist entry not found"}

	ErrForbidden = &Error{kind: KindForbidden, msg: "access denied"}

	ErrBusy        = &Error{kind: KindBusy, msg: "slot is busy, retry later"}
	ErrUnavailable = &Error{kind: KindUnavailable, msg: "reservation store unavailable"}

	// ErrConflict is a retryable serialization failure raised by a Store.
	// The engine retries it and never returns it to callers.
	ErrConflict = &Error{kind: KindConflict, msg: "concurrent modification"}
)

// Kind classifies any error returned from this package.
func Kind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindSeatConflict, KindCapacityExceeded:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBusy, KindUnavailable, KindConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wrapf annotates a sentinel while keeping it matchable with errors.Is.
func wrapf(sentinel *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{sentinel}, args...)...)
}
