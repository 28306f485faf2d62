// Package repository holds the MySQL data access for rounds, tickets,
// orders, prize results and the outbox.  Methods with a Tx suffix run on a
// caller-owned transaction; the caller commits or rolls back.  Sentinel
// errors below let the service layer tell failure cases apart.
package repository

import "errors"

// ErrNotFound is returned when a row looked up by id does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such
// as a duplicate ticket number within a round.
var ErrConflict = errors.New("conflict")
