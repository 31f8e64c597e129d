package meeting

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a meeting or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is attempted outside the
	// meeting status it requires (e.g. appending chunks to an ended meeting).
	ErrInvalidState = errors.New("invalid meeting state")

	// ErrInvalidTransition is returned for lifecycle transitions that do not
	// exist (e.g. ending a meeting that never started). It matches
	// [ErrInvalidState] under errors.Is.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidState)

	// ErrDuplicateChunk is returned when a chunk with the same sequence
	// number was already appended to the meeting. Duplicate appends are
	// rejected, never overwritten.
	ErrDuplicateChunk = errors.New("duplicate chunk sequence number")
)
