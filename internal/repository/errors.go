// Package repository implements the persistence layer over MySQL.  The
// sentinel errors below are the only failure shapes the store exposes
// beyond raw driver errors; the service layer translates them into its
// own domain error kinds.
package repository

import "errors"

// ErrEmailExists is returned by Create when the unique email index
// rejects an insert.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")
