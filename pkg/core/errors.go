package core

import (
	"errors"
	"fmt"
)

// ErrInputNotFound is returned (wrapped with the path) when an input file or
// object does not exist.
var ErrInputNotFound = errors.New("input not found")

// ParseError reports a field whose value does not match its expected grammar.
type ParseError struct {
	Field string // column name, e.g. "Positions in Master Proteins"
	Value string // offending token or raw value
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error in %s: %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %q", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError reports a failed schema or insert operation at the storage boundary.
type StorageError struct {
	Op    string // create, drop, insert, begin, commit
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RecordError attaches the record's origin to an error raised while handling it.
type RecordError struct {
	Source string
	Line   int
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsParseError reports whether err (or anything it wraps) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsStorageError reports whether err (or anything it wraps) is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
