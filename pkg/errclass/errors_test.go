package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelab/draudit/pkg/errclass"
)

func TestError_Error(t *testing.T) {
	err := errclass.ErrHashMismatch.WithMessage("snapshot abc tampered")
	assert.Equal(t, "E_HASH_MISMATCH: snapshot abc tampered", err.Error())
	assert.Equal(t, "E_NOT_FOUND", errclass.ErrNotFound.Error())
}

func TestError_Is(t *testing.T) {
	err := errclass.ErrMigration.WithMessagef("line %d", 3)
	require.True(t, errors.Is(err, errclass.ErrMigration))
	require.False(t, errors.Is(err, errclass.ErrEncoding))
}

func TestError_IsThroughWrap(t *testing.T) {
	err := fmt.Errorf("get snapshot: %w", errclass.ErrHashMismatch.WithMessage("x"))
	assert.True(t, errors.Is(err, errclass.ErrHashMismatch))
	assert.False(t, errors.Is(err, errclass.ErrNotFound))
}

func TestError_CodesUnique(t *testing.T) {
	all := []*errclass.Error{
		errclass.ErrEncoding,
		errclass.ErrHashMismatch,
		errclass.ErrNotFound,
		errclass.ErrCorruption,
		errclass.ErrMigration,
		errclass.ErrReplay,
		errclass.ErrRecordInvalid,
		errclass.ErrCursorConflict,
		errclass.ErrNameInvalid,
		errclass.ErrPathEscape,
	}
	seen := map[string]bool{}
	for _, e := range all {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}
