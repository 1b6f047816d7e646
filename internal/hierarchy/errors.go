package hierarchy

import (
	"errors"
	"fmt"
)

var (
	ErrParentNotMapped  = errors.New("parent path not mapped")
	ErrDuplicateID      = errors.New("duplicate id within parent")
	ErrProjectExists    = errors.New("tree already has a project")
	ErrProjectNotMapped = errors.New("tree has no project")
)

// UnknownTypeError is returned for a row whose type is outside the vocabulary.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown hierarchy type %q", e.Type)
}

// MappingError is returned for a malformed row of a known type.
type MappingError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("map row: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("map %s row: %s: %s", e.Type, e.Field, e.Reason)
}

// RowError ties a mapping failure to the position of the offending row.
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
