package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	e := New(HierarchyError, "resolver.Resolve")
	assert.Equal(t, HierarchyError, e.Code)
	assert.Equal(t, "resolver.Resolve", e.Op)
	assert.Nil(t, e.Err)
	assert.Contains(t, e.Error(), "resolver.Resolve")
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(SysLibraryError, "catalog.Commit", cause)

	assert.Equal(t, cause, e.Unwrap())
	assert.True(t, errors.Is(e, cause))
	assert.Contains(t, e.Error(), "disk full")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"direct E", New(SysOutOfL1Desc, "l1table.Allocate"), SysOutOfL1Desc},
		{"wrapped E", fmt.Errorf("context: %w", New(HierarchyLocked, "locking.Acquire")), HierarchyLocked},
		{"plain error", errors.New("boom"), SysInternalErr},
		{"nil error", nil, SysInternalErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestCodeRangesDontCollide(t *testing.T) {
	seen := map[Code]string{}
	all := map[Code]string{
		InputArgNotWellFormed:     "InputArgNotWellFormed",
		SysInvalidInputParam:      "SysInvalidInputParam",
		BadInputDescIndex:         "BadInputDescIndex",
		DirectChildAccess:         "DirectChildAccess",
		PathTooLong:               "PathTooLong",
		BadOpenFlags:              "BadOpenFlags",
		OverwriteWithoutForceFlag: "OverwriteWithoutForceFlag",
		QuotaExceeded:             "QuotaExceeded",
		PermissionDeniedByHook:    "PermissionDeniedByHook",
		SysReplicaDoesNotExist:    "SysReplicaDoesNotExist",
		HierarchyError:            "HierarchyError",
		HierarchyLocked:           "HierarchyLocked",
		SysOutOfL1Desc:            "SysOutOfL1Desc",
		DescriptorNotInUse:        "DescriptorNotInUse",
		SysCopyLenErr:             "SysCopyLenErr",
		UserChksumMismatch:        "UserChksumMismatch",
		PhysicalPathAlreadyExists: "PhysicalPathAlreadyExists",
		UnknownFileSz:             "UnknownFileSz",
		SysNoRowsFound:            "SysNoRowsFound",
		SysLibraryError:           "SysLibraryError",
		SysRowAlreadyExists:       "SysRowAlreadyExists",
		SysInternalErr:            "SysInternalErr",
		SysUnknownHostname:        "SysUnknownHostname",
		SysConfigFileErr:          "SysConfigFileErr",
		SysUnsupportedOperation:   "SysUnsupportedOperation",
	}

	for code, name := range all {
		if prev, ok := seen[code]; ok {
			t.Fatalf("code %d used by both %s and %s", code, prev, name)
		}
		seen[code] = name
	}
}
