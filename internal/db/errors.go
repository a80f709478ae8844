package db

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by this package matches one of these
// with errors.Is.
var (
	ErrNoWritableLocation = errors.New("no writable data location")
	ErrInvalidProjectName = errors.New("invalid project name")
	ErrFilesystem         = errors.New("filesystem failure")
	ErrConnection         = errors.New("connection failure")
	ErrStatement          = errors.New("statement failure")
	ErrNotOpen            = errors.New("database not open")
)

// StatementError carries the SQL text of a failed statement.
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("exec %q: %v", compactSQL(e.SQL), e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Is reports ErrStatement for every StatementError.
func (e *StatementError) Is(target error) bool { return target == ErrStatement }
