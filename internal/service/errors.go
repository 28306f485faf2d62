package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors returned by the services.  Handlers map them to HTTP
// status codes; the payment consumer uses Permanent to decide whether a
// message may be retried.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTicketUnavailable = errors.New("ticket unavailable")
	ErrOrderExpired      = errors.New("order expired")
	ErrInvalidOrderState = errors.New("invalid order state")
	ErrOrderNotFound     = errors.New("order not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrRoundNotFound     = errors.New("round not found")
	ErrRoundNotOpen      = errors.New("round not open for sale")
	ErrRoundNotClosed    = errors.New("round selling window still open")
	ErrRoundNotDrawn     = errors.New("round not drawn")
	ErrRoundAlreadyDrawn = errors.New("round already drawn")
	ErrRoundState        = errors.New("illegal round transition")
	ErrForbidden         = errors.New("forbidden")
)

// TicketUnavailableError names the requested tickets that could not be
// claimed.  It matches ErrTicketUnavailable with errors.Is.
type TicketUnavailableError struct {
	TicketIDs []uint64
}

func (e *TicketUnavailableError) Error() string {
	ids := make([]string, len(e.TicketIDs))
	for i, id := range e.TicketIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("%s: %s", ErrTicketUnavailable, strings.Join(ids, ","))
}

func (e *TicketUnavailableError) Unwrap() error { return ErrTicketUnavailable }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Permanent reports whether retrying the same call can never succeed.
func Permanent(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrOrderExpired, ErrInvalidOrderState, ErrOrderNotFound,
		ErrTicketUnavailable, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
