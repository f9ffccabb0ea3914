package mechanism

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMechanismSelected is returned when a deployment requests no interception at all.
var ErrNoMechanismSelected = errors.New("no DTIO interception mechanism selected (enable at least one of posix, stdio, mpi, hdf5)")

// LibraryNotFoundError reports a requested mechanism whose library could not be located.
// It is fatal: a requested mechanism never degrades to pass-through.
type LibraryNotFoundError struct {
	Mechanism Mechanism
	Searched  []string
}

func (e *LibraryNotFoundError) Error() string {
	msg := fmt.Sprintf("could not find %s library for mechanism '%s'", e.Mechanism.LibraryName(), e.Mechanism)
	if len(e.Searched) > 0 {
		msg += fmt.Sprintf(" (searched: %s)", strings.Join(e.Searched, ", "))
	}
	return msg
}
