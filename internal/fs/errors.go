// Package fs provides the chfs filesystem: the path codec, the
// path-based adapter over the document store, and the FUSE node tree.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"fmt"
	"syscall"

	"chfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrNotFound indicates a path, document or attachment is absent, or
	// the store could not answer.
	ErrNotFound = errors.New("not found")

	// ErrNotPermitted indicates an operation the node kind does not
	// support, such as reading a directory.
	ErrNotPermitted = errors.New("operation not permitted")

	// ErrReadOnly indicates attempt to modify read-only filesystem
	ErrReadOnly = errors.New("filesystem is read-only")
)

// Error wraps filesystem errors with the operation and path that failed.
type Error struct {
	Op   string // Operation that failed (e.g., "getattr", "readdir")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// ToFuseError converts an adapter error to the errno FUSE expects.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotPermitted):
		return syscall.EPERM
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	errLogger.Debug("Unknown error type, returning EIO: %v", err)
	return syscall.EIO
}

// Status maps an outcome to the dispatcher status convention: 0 on
// success, a negative errno otherwise.
func Status(err error) int {
	if err == nil {
		return 0
	}
	errno, _ := ToFuseError(err).(syscall.Errno)
	return -int(errno)
}

// newError creates an Error with the given operation, path, and underlying error
func newError(op string, path string, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Trace("Created new FSError: %v", fsErr)
	return fsErr
}

// Common operation names for consistent logging and error reporting
const (
	OpGetattr = "getattr" // Getting file attributes
	OpReadDir = "readdir" // Reading directory contents
	OpOpen    = "open"    // Opening a file
	OpRead    = "read"    // Reading from a file
	OpLookup  = "lookup"  // Looking up a child name
)
