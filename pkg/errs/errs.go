// Package errs defines the stable error-code taxonomy used across the
// data-object lifecycle core and the E type that carries a code, the
// failing operation, and an optional wrapped cause.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable negative error code. Values never change meaning once
// assigned; new categories get new ranges rather than reusing numbers.
type Code int32

// Error code ranges loosely mirror input, authorization, state, I/O,
// catalog, and environment failure categories. Each category reserves a
// block of 1000 so new members can be added without colliding with a
// neighboring category.
const (
	// Input errors: malformed requests, bad arguments.
	InputArgNotWellFormed Code = -130000 - iota
	SysInvalidInputParam
	BadInputDescIndex
	DirectChildAccess
	PathTooLong
	BadOpenFlags
)

const (
	// Authorization / policy errors.
	OverwriteWithoutForceFlag Code = -131000 - iota
	QuotaExceeded
	PermissionDeniedByHook
)

const (
	// State errors.
	SysReplicaDoesNotExist Code = -132000 - iota
	HierarchyError
	HierarchyLocked
	SysOutOfL1Desc
	DescriptorNotInUse
)

const (
	// I/O errors.
	SysCopyLenErr Code = -133000 - iota
	UserChksumMismatch
	PhysicalPathAlreadyExists
	UnknownFileSz
)

const (
	// Catalog errors.
	SysNoRowsFound Code = -134000 - iota
	SysLibraryError
	SysRowAlreadyExists
	SysInternalErr
)

const (
	// Resource / environment errors.
	SysUnknownHostname Code = -135000 - iota
	SysConfigFileErr
	SysUnsupportedOperation
)

// E is the error type returned by every exported operation in this module.
// Op names the failing operation (e.g. "resolver.Resolve",
// "finalize.Engine.Close") so a caller reading only the error string can
// tell where in the pipeline it originated.
type E struct {
	Code Code
	Op   string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (code %d)", e.Op, e.Err, e.Code)
	}
	return fmt.Sprintf("%s: code %d", e.Op, e.Code)
}

func (e *E) Unwrap() error {
	return e.Err
}

// New builds an *E with no wrapped cause.
func New(code Code, op string) *E {
	return &E{Code: code, Op: op}
}

// Wrap builds an *E wrapping an underlying error.
func Wrap(code Code, op string, err error) *E {
	return &E{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code from err if it is (or wraps) an *E, returning
// SysInternalErr otherwise. Useful at boundaries that must report a code
// for an error of unknown provenance (e.g. a metrics label).
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return SysInternalErr
}
